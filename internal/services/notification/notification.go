// Package notification передаёт уведомления сервису рассылки.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/magabrotheeeer/render-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/render-ledger/internal/metrics"
	"github.com/magabrotheeeer/render-ledger/internal/models"
	"github.com/magabrotheeeer/render-ledger/internal/rabbitmq"
)

// Publisher публикует уведомления в обменник rabbitmq.Exchange.
// Ключ маршрутизации совпадает с видом уведомления.
type Publisher struct {
	mu  sync.Mutex
	ch  rabbitmq.Publisher
	log *slog.Logger
}

// NewPublisher создаёт Publisher поверх открытого канала.
func NewPublisher(ch rabbitmq.Publisher, log *slog.Logger) *Publisher {
	return &Publisher{ch: ch, log: log}
}

// Notify публикует одно уведомление.
func (p *Publisher) Notify(ctx context.Context, n models.Notification) error {
	const op = "services.notification.Notify"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	err := rabbitmq.PublishMessage(p.ch, rabbitmq.Exchange, string(n.Kind), n)
	p.mu.Unlock()

	metrics.NotificationsTotal.WithLabelValues(string(n.Kind), metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	p.log.Debug("notification published", slog.String("kind", string(n.Kind)), sl.Email(n.Email))
	return nil
}

// LogNotifier пишет уведомления в лог вместо отправки. Используется, когда брокер не настроен.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier создаёт LogNotifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify пишет уведомление в лог вместе с кодом.
func (l *LogNotifier) Notify(_ context.Context, n models.Notification) error {
	attrs := []any{slog.String("kind", string(n.Kind)), sl.Email(n.Email)}
	if n.Code != "" {
		attrs = append(attrs, slog.String("code", n.Code))
	}
	if n.TrialEndsAt != nil {
		attrs = append(attrs, slog.Time("trial_ends_at", *n.TrialEndsAt))
	}
	l.log.Info("notification not sent, broker is not configured", attrs...)
	metrics.NotificationsTotal.WithLabelValues(string(n.Kind), "logged").Inc()
	return nil
}
