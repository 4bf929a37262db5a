// Package health отвечает на проверки живости сервиса.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/render-ledger/internal/http/response"
	"github.com/magabrotheeeer/render-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/render-ledger/internal/storage"
)

const checkTimeout = 2 * time.Second

// Store хранилище, доступность которого проверяется чтением коллекции.
type Store interface {
	View(ctx context.Context, work storage.WorkFunc) error
}

// Handler обрабатывает GET /health.
type Handler struct {
	log   *slog.Logger
	store Store
}

// New создаёт Handler.
func New(log *slog.Logger, store Store) *Handler {
	return &Handler{log: log, store: store}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	var accounts int
	err := h.store.View(ctx, func(c *storage.Collection) error {
		accounts = c.Len()
		return nil
	})
	if err != nil {
		h.log.Error("storage check failed", slog.String("op", op), sl.Err(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.ErrorWithData("storage unavailable", map[string]any{"status": "degraded"}))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"status":   "ok",
		"accounts": accounts,
	}))
}
