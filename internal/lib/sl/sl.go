// Package sl содержит вспомогательные функции для работы с логгером slog.
// Нужен, чтобы упростить формирование структурированных полей лога,
// например, для передачи информации об ошибках и адресах почты.
package sl

import (
	"log/slog"
	"strings"
)

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
//
// Пример:
//
//	log.Error("failed to do something", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Email возвращает slog.Attr с адресом почты, у которого скрыта локальная часть.
// В логах остаются первый символ и домен: "a***@x.com".
func Email(email string) slog.Attr {
	return slog.String("email", MaskEmail(email))
}

// MaskEmail скрывает локальную часть адреса почты.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
