// Package render списывает один рендер с квоты текущей учётной записи.
//
// Разрешённая попытка отвечает 200, заблокированная 402 с состоянием квоты и причиной.
package render

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	chirender "github.com/go-chi/render"

	"github.com/magabrotheeeer/render-ledger/internal/http/middlewarectx"
	"github.com/magabrotheeeer/render-ledger/internal/http/response"
	"github.com/magabrotheeeer/render-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/render-ledger/internal/services/accounts"
)

// Service списывает рендеры.
type Service interface {
	ConsumeRender(ctx context.Context, email string) (accounts.RenderResult, error)
}

// Handler обрабатывает POST /renders.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создаёт Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.account.render"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	email, ok := middlewarectx.EmailFrom(r.Context())
	if !ok {
		log.Error("email not found in context")
		chirender.Status(r, http.StatusUnauthorized)
		chirender.JSON(w, r, response.Error("unauthorized"))
		return
	}

	res, err := h.service.ConsumeRender(r.Context(), email)
	if err != nil {
		log.Error("failed to consume render", sl.Err(err), sl.Email(email))
		status, resp := response.FromLedgerError(err)
		chirender.Status(r, status)
		chirender.JSON(w, r, resp)
		return
	}

	if !res.Allowed {
		log.Info("render blocked", slog.String("state", string(res.Quota.State)), sl.Email(email))
		chirender.Status(r, http.StatusPaymentRequired)
		chirender.JSON(w, r, response.ErrorWithData(res.Quota.Message, res))
		return
	}

	chirender.JSON(w, r, response.OKWithData(res))
}
