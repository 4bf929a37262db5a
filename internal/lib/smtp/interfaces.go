// Package smtp подключается к почтовому серверу для сервиса рассылки.
package smtp

import (
	"context"
	"io"
)

// Client часть *smtp.Client, нужная для отправки одного письма.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// TransportInterface выдаёт авторизованного клиента и адрес отправителя.
type TransportInterface interface {
	Connect(ctx context.Context) (Client, error)
	GetSMTPUser() string
}
