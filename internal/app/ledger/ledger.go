// Package ledger собирает HTTP-сервис учёта учётных записей и квот рендеров.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/render-ledger/internal/config"
	"github.com/magabrotheeeer/render-ledger/internal/http/middlewarectx"
	ledgerengine "github.com/magabrotheeeer/render-ledger/internal/ledger"
	"github.com/magabrotheeeer/render-ledger/internal/lib/jwt"
	"github.com/magabrotheeeer/render-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/render-ledger/internal/plans"
	"github.com/magabrotheeeer/render-ledger/internal/rabbitmq"
	"github.com/magabrotheeeer/render-ledger/internal/services/accounts"
	"github.com/magabrotheeeer/render-ledger/internal/services/billing"
	"github.com/magabrotheeeer/render-ledger/internal/services/notification"
	"github.com/magabrotheeeer/render-ledger/internal/services/scheduler"
	"github.com/magabrotheeeer/render-ledger/internal/storage"
)

const shutdownTimeout = 15 * time.Second

// App HTTP-сервис со всеми зависимостями.
type App struct {
	server    *http.Server
	logger    *slog.Logger
	store     *storage.Store
	scheduler *scheduler.SchedulerService
	spec      string
	conn      *amqp.Connection
	ch        *amqp.Channel
}

// New открывает хранилище и брокер и собирает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.ledger.New"

	if cfg.JWTSecretKey == "" {
		return nil, fmt.Errorf("%s: jwttoken.jwt_secret_key is required", op)
	}

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	store := storage.New(backend, logger, storage.WithOperationTimeout(cfg.OperationTimeout))

	app := &App{
		logger: logger,
		store:  store,
	}

	var notifier accounts.Notifier = notification.NewLogNotifier(logger)
	if cfg.RabbitMQURL != "" {
		conn, err := rabbitmq.ConnectContext(ctx, cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
		if err != nil {
			_ = conn.Close()
			_ = store.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.conn, app.ch = conn, ch
		notifier = notification.NewPublisher(ch, logger)
	} else {
		logger.Warn("rabbitmq url is not set, notifications are only logged")
	}

	catalog := plans.Default()
	engine := ledgerengine.NewEngine(catalog, ledgerengine.Settings{
		TrialDuration: cfg.TrialDuration(),
		TrialRenders:  cfg.TrialRenders,
	})

	accountService := accounts.New(store, engine, notifier, logger, accounts.Settings{
		VerificationTTL: cfg.VerificationTTL,
		ResetTTL:        cfg.ResetTTL,
	})
	billingService := billing.New(store, engine, logger)

	if cfg.SchedulerEnabled {
		app.scheduler = scheduler.NewSchedulerService(store, engine, notifier, logger, cfg.ReminderWindow)
		app.spec = cfg.Spec
	}

	if cfg.WebhookSecret == "" {
		logger.Warn("billing webhook secret is not set, webhook requests will be rejected")
	}

	router := chi.NewRouter()
	RegisterRoutes(router, Deps{
		Logger:        logger,
		Store:         store,
		Accounts:      accountService,
		Billing:       billingService,
		Catalog:       catalog,
		Tokens:        jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL),
		Limiter:       middlewarectx.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		WebhookSecret: cfg.WebhookSecret,
	})

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

// Run обслуживает запросы до отмены ctx, затем останавливает сервер,
// планировщик и хранилище в таком порядке.
func (a *App) Run(ctx context.Context) error {
	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx, a.spec); err != nil {
			a.close()
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err = a.server.Shutdown(timeoutCtx)
		if a.scheduler != nil {
			a.scheduler.Stop(timeoutCtx)
		}
	}
	a.close()
	return err
}

func (a *App) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			a.logger.Error("failed to close connection", sl.Err(err))
		}
	}
}
