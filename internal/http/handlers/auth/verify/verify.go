// Package verify реализует HTTP-обработчики подтверждения почты и повторной отправки кода.
package verify

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/render-ledger/internal/http/response"
	"github.com/magabrotheeeer/render-ledger/internal/lib/sl"
)

// Request входные данные для подтверждения почты.
type Request struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

// ResendRequest входные данные для повторной отправки кода.
type ResendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Handler обрабатывает POST /verify.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.verify"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if !decode(w, r, log, h.validate, &req) {
		return
	}

	res, err := h.service.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		log.Warn("verification failed", sl.Err(err), sl.Email(req.Email))
		status, resp := response.FromLedgerError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	msg := "email verified"
	if res.AlreadyVerified {
		msg = "email already verified"
	}
	log.Info(msg, sl.Email(res.Account.Email))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"message": msg,
		"account": res.Account,
		"quota":   res.Quota,
	}))
}

// ResendHandler обрабатывает POST /verify/resend.
type ResendHandler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// NewResend создаёт ResendHandler.
func NewResend(log *slog.Logger, service Service) *ResendHandler {
	return &ResendHandler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *ResendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.verify.resend"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req ResendRequest
	if !decode(w, r, log, h.validate, &req) {
		return
	}

	issued, err := h.service.ResendVerification(r.Context(), req.Email)
	if err != nil {
		log.Warn("resend failed", sl.Err(err), sl.Email(req.Email))
		status, resp := response.FromLedgerError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	msg := "verification code sent"
	if issued == "" {
		msg = "email already verified"
	}
	render.JSON(w, r, response.OKWithData(map[string]any{"message": msg}))
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
