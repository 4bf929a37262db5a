// Package password реализует HTTP-обработчики сброса пароля по одноразовому коду.
//
// Запрос кода для неизвестного адреса отвечает так же, как для известного,
// чтобы по ответу нельзя было проверить наличие учётной записи.
package password

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/render-ledger/internal/http/response"
	"github.com/magabrotheeeer/render-ledger/internal/ledger"
	"github.com/magabrotheeeer/render-ledger/internal/lib/sl"
)

const resetRequestedMessage = "if the account exists, a reset code has been sent"

// ResetRequest входные данные для запроса кода.
type ResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ConfirmRequest входные данные для смены пароля.
type ConfirmRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Code     string `json:"code" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// ResetHandler обрабатывает POST /password/reset.
type ResetHandler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// NewReset создаёт ResetHandler.
func NewReset(log *slog.Logger, service Service) *ResetHandler {
	return &ResetHandler{log: log, service: service, validate: validator.New()}
}

func (h *ResetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.password.reset"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req ResetRequest
	if !decode(w, r, log, h.validate, &req) {
		return
	}

	if _, err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			log.Error("reset request failed", sl.Err(err), sl.Email(req.Email))
			status, resp := response.FromLedgerError(err)
			render.Status(r, status)
			render.JSON(w, r, resp)
			return
		}
		log.Info("reset requested for unknown account", sl.Email(req.Email))
	}

	render.JSON(w, r, response.OKWithData(map[string]any{"message": resetRequestedMessage}))
}

// ConfirmHandler обрабатывает POST /password/reset/confirm.
type ConfirmHandler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// NewConfirm создаёт ConfirmHandler.
func NewConfirm(log *slog.Logger, service Service) *ConfirmHandler {
	return &ConfirmHandler{log: log, service: service, validate: validator.New()}
}

func (h *ConfirmHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.password.confirm"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req ConfirmRequest
	if !decode(w, r, log, h.validate, &req) {
		return
	}

	if err := h.service.ConfirmPasswordReset(r.Context(), req.Email, req.Code, req.Password); err != nil {
		log.Warn("password reset failed", sl.Err(err), sl.Email(req.Email))
		status, resp := response.FromLedgerError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{"message": "password updated"}))
}

func decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, v *validator.Validate, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return false
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid request body"))
			return false
		}
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(verrs))
		return false
	}
	return true
}
