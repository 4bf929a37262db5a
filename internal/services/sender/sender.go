// Package sender отправляет письма по уведомлениям из очередей RabbitMQ.
package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/render-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/render-ledger/internal/lib/smtp"
	"github.com/magabrotheeeer/render-ledger/internal/models"
)

// ErrUnknownKind возвращается для уведомления неизвестного вида.
var ErrUnknownKind = errors.New("unknown notification kind")

const dateLayout = "02/01/2006 15:04 MST"

// SenderService превращает уведомление в письмо и отправляет его.
type SenderService struct {
	transport smtp.TransportInterface
	log       *slog.Logger
	timeout   time.Duration
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(transport smtp.TransportInterface, log *slog.Logger, timeout time.Duration) *SenderService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SenderService{
		transport: transport,
		log:       log,
		timeout:   timeout,
	}
}

// Handle обрабатывает тело сообщения из очереди. Нечитаемые сообщения и неизвестные
// виды подтверждаются без отправки. Ошибка отправки возвращает сообщение в очередь.
func (s *SenderService) Handle(body []byte) error {
	var n models.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		s.log.Error("failed to unmarshal message body, dropped", sl.Err(err))
		return nil
	}

	subject, text, err := Compose(n)
	if err != nil {
		s.log.Error("notification dropped", slog.String("kind", string(n.Kind)), sl.Err(err))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.sendEmail(ctx, n.Email, subject, text)
}

// Compose собирает тему и текст письма.
func Compose(n models.Notification) (subject, body string, err error) {
	name := strings.TrimSpace(n.Name)
	if name == "" {
		name = n.Email
	}

	switch n.Kind {
	case models.NotificationVerification:
		subject = "Confirma tu correo electronico"
		body = fmt.Sprintf("Hola, %s!\n\nTu codigo de verificacion es: %s\n", name, n.Code)
		if n.ExpiresAt != nil {
			body += fmt.Sprintf("El codigo caduca el %s.\n", n.ExpiresAt.UTC().Format(dateLayout))
		}
	case models.NotificationReset:
		subject = "Restablece tu contrasena"
		body = fmt.Sprintf("Hola, %s!\n\nTu codigo para restablecer la contrasena es: %s\n", name, n.Code)
		if n.ExpiresAt != nil {
			body += fmt.Sprintf("El codigo caduca el %s.\n", n.ExpiresAt.UTC().Format(dateLayout))
		}
		body += "Si no lo has solicitado, ignora este mensaje.\n"
	case models.NotificationTrialEnding:
		subject = "Tu periodo de prueba termina pronto"
		body = fmt.Sprintf("Hola, %s!\n\nTu periodo de prueba termina", name)
		if n.TrialEndsAt != nil {
			body += " el " + n.TrialEndsAt.UTC().Format(dateLayout)
		}
		body += ".\nElige un plan para seguir generando renders sin interrupciones.\n"
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownKind, n.Kind)
	}
	return subject, body, nil
}

func (s *SenderService) sendEmail(ctx context.Context, to, subject, bodyText string) error {
	const op = "services.sender.sendEmail"
	from := s.transport.GetSMTPUser()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			s.log.Debug("smtp client close", sl.Err(err))
		}
	}()

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("%s: mail from: %w", op, err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("%s: rcpt to: %w", op, err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("%s: data: %w", op, err)
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		return fmt.Errorf("%s: write body: %w", op, err)
	}
	if err = wc.Close(); err != nil {
		return fmt.Errorf("%s: close data: %w", op, err)
	}
	if err = client.Quit(); err != nil {
		return fmt.Errorf("%s: quit: %w", op, err)
	}

	s.log.Info("email sent successfully", slog.String("subject", subject), sl.Email(to))
	return nil
}
