// Package login реализует HTTP-обработчик входа по адресу и паролю.
//
// При успешной проверке возвращается JWT вместе с профилем и состоянием квоты.
// Неизвестный адрес и неверный пароль дают одинаковый ответ 401.
package login

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

// Request входные данные для входа.
type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Handler обрабатывает POST /login.
type Handler struct {
	log      *slog.Logger
	service  Service
	tokens   TokenGenerator
	validate *validator.Validate
}

// New создаёт Handler.
func New(log *slog.Logger, service Service, tokens TokenGenerator) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		tokens:   tokens,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	profile, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		log.Warn("login failed", sl.Err(err), sl.Email(req.Email))
		if errors.Is(err, ledger.ErrNotFound) {
			err = ledger.ErrInvalidPassword
		}
		status, resp := response.FromLedgerError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	token, err := h.tokens.GenerateToken(profile.Account.ID, profile.Account.Email)
	if err != nil {
		log.Error("failed to generate token", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("login success", sl.Email(profile.Account.Email))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"token":   token,
		"account": profile.Account,
		"quota":   profile.Quota,
	}))
}
