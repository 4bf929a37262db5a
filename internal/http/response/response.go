// Package response содержит унифицированный формат JSON-ответов HTTP-обработчиков
// и перевод ошибок ledger-а в HTTP-статусы.
package response

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/render-ledger/internal/ledger"
	"github.com/magabrotheeeer/render-ledger/internal/storage"
)

// Response описывает стандартную структуру JSON-ответа сервера.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

const (
	StatusOK    = "OK"
	StatusError = "Error"
)

// OKWithData возвращает успешный Response с переданными данными.
func OKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(msg string) Response {
	return Response{
		Status: StatusError,
		Error:  msg,
	}
}

// ErrorWithData возвращает Response с ошибкой и данными, поясняющими её.
func ErrorWithData(msg string, data any) Response {
	return Response{
		Status: StatusError,
		Error:  msg,
		Data:   data,
	}
}

// ValidationError формирует Response со статусом Error на основе ошибок валидации.
func ValidationError(errs validator.ValidationErrors) Response {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be a valid email", err.Field()))
		case "min":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at least %s characters", err.Field(), err.Param()))
		case "max":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at most %s characters", err.Field(), err.Param()))
		case "numeric":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s can contain only numbers", err.Field()))
		case "len":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be %s characters long", err.Field(), err.Param()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}
	return Response{
		Status: StatusError,
		Error:  strings.Join(errsMsgs, ", "),
	}
}

// FromLedgerError возвращает HTTP-статус и текст для ошибки ledger-а.
// Неизвестные ошибки превращаются в 500 без подробностей.
func FromLedgerError(err error) (int, Response) {
	switch {
	case errors.Is(err, ledger.ErrDuplicateEmail):
		return http.StatusConflict, Error("account with this email already exists")
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, Error("account not found")
	case errors.Is(err, ledger.ErrInvalidPassword):
		return http.StatusUnauthorized, Error("invalid email or password")
	case errors.Is(err, ledger.ErrInvalidCode):
		return http.StatusBadRequest, Error("invalid code")
	case errors.Is(err, ledger.ErrCodeExpired):
		return http.StatusGone, Error("code expired")
	case errors.Is(err, ledger.ErrVerificationRequired):
		return http.StatusForbidden, Error("email verification required")
	case ledger.IsTransient(err),
		errors.Is(err, storage.ErrClosed),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, Error("service temporarily unavailable, retry later")
	default:
		return http.StatusInternalServerError, Error("internal error")
	}
}
