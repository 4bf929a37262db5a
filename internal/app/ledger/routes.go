package ledger

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magabrotheeeer/render-ledger/internal/http/handlers/account/profile"
	"github.com/magabrotheeeer/render-ledger/internal/http/handlers/account/render"
	"github.com/magabrotheeeer/render-ledger/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/render-ledger/internal/http/handlers/auth/password"
	"github.com/magabrotheeeer/render-ledger/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/render-ledger/internal/http/handlers/auth/verify"
	"github.com/magabrotheeeer/render-ledger/internal/http/handlers/billing/plans"
	"github.com/magabrotheeeer/render-ledger/internal/http/handlers/billing/webhook"
	"github.com/magabrotheeeer/render-ledger/internal/http/handlers/health"
	"github.com/magabrotheeeer/render-ledger/internal/http/middlewarectx"
	"github.com/magabrotheeeer/render-ledger/internal/lib/jwt"
	catalog "github.com/magabrotheeeer/render-ledger/internal/plans"
	"github.com/magabrotheeeer/render-ledger/internal/services/accounts"
	"github.com/magabrotheeeer/render-ledger/internal/services/billing"
	"github.com/magabrotheeeer/render-ledger/internal/storage"
)

// Deps зависимости маршрутов.
type Deps struct {
	Logger        *slog.Logger
	Store         *storage.Store
	Accounts      *accounts.Service
	Billing       *billing.Service
	Catalog       catalog.Catalog
	Tokens        jwt.Maker
	Limiter       *middlewarectx.IPRateLimiter
	WebhookSecret string
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, d Deps) {
	logger := d.Logger

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.New(logger, d.Store).ServeHTTP)
		r.Get("/plans", plans.New(logger, d.Catalog).ServeHTTP)
		r.Post("/billing/webhook", webhook.New(logger, d.Billing, d.WebhookSecret).ServeHTTP)

		// Открытые конечные точки с ограничением частоты
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(d.Limiter, logger))
			r.Post("/register", register.New(logger, d.Accounts).ServeHTTP)
			r.Post("/login", login.New(logger, d.Accounts, d.Tokens).ServeHTTP)
			r.Post("/verify", verify.New(logger, d.Accounts).ServeHTTP)
			r.Post("/verify/resend", verify.NewResend(logger, d.Accounts).ServeHTTP)
			r.Post("/password/reset", password.NewReset(logger, d.Accounts).ServeHTTP)
			r.Post("/password/reset/confirm", password.NewConfirm(logger, d.Accounts).ServeHTTP)
		})

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(d.Tokens, logger))
			r.Get("/me", profile.New(logger, d.Accounts).ServeHTTP)
			r.Post("/renders", render.New(logger, d.Accounts).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
}
