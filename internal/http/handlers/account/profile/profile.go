// Package profile отдаёт профиль текущей учётной записи вместе с состоянием квоты.
package profile

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/render-ledger/internal/http/middlewarectx"
	"github.com/magabrotheeeer/render-ledger/internal/http/response"
	"github.com/magabrotheeeer/render-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/render-ledger/internal/services/accounts"
)

// Service читает профиль учётной записи.
type Service interface {
	GetProfile(ctx context.Context, email string) (accounts.Profile, error)
}

// Handler обрабатывает GET /me.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.profile"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	email, ok := middlewarectx.EmailFrom(r.Context())
	if !ok {
		log.Error("email not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	p, err := h.service.GetProfile(r.Context(), email)
	if err != nil {
		log.Error("failed to get profile", sl.Err(err), sl.Email(email))
		status, resp := response.FromLedgerError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	render.JSON(w, r, response.OKWithData(p))
}
