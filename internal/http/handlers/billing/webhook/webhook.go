// Package webhook принимает события платёжного провайдера.
//
// Тело подписывается HMAC-SHA256 общим секретом, подпись в base64 передаётся
// в заголовке X-Signature. Событие без верной подписи не обрабатывается.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/render-ledger/internal/http/response"
	"github.com/magabrotheeeer/render-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/render-ledger/internal/services/billing"
)

// SignatureHeader заголовок с подписью тела.
const SignatureHeader = "X-Signature"

const maxBodyBytes = 64 << 10

// Service обрабатывает события провайдера.
type Service interface {
	ProcessWebhookEvent(ctx context.Context, payload []byte) (billing.Outcome, error)
}

// Handler обрабатывает POST /billing/webhook.
type Handler struct {
	log     *slog.Logger
	service Service
	secret  []byte
}

// New создаёт Handler.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:     log,
		service: service,
		secret:  []byte(secret),
	}
}

// Sign возвращает подпись тела для секрета.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	signature := r.Header.Get(SignatureHeader)
	if len(h.secret) == 0 || signature == "" ||
		!hmac.Equal([]byte(Sign(h.secret, body)), []byte(signature)) {
		log.Warn("invalid or missing webhook signature")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	outcome, err := h.service.ProcessWebhookEvent(r.Context(), body)
	if err != nil {
		if errors.Is(err, billing.ErrMalformedEvent) {
			log.Warn("malformed webhook event", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("malformed event"))
			return
		}
		log.Error("failed to process webhook event", sl.Err(err))
		status, resp := response.FromLedgerError(err)
		render.Status(r, status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("webhook event processed", slog.String("outcome", string(outcome)))
	render.JSON(w, r, response.OKWithData(map[string]any{"outcome": outcome}))
}
