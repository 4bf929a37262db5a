// Package billing применяет к учётным записям подтверждённые покупки планов.
//
// Изменения идут через тот же сериализованный Store, что и интерактивные запросы.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/magabrotheeeer/render-ledger/internal/ledger"
	"github.com/magabrotheeeer/render-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/render-ledger/internal/metrics"
	"github.com/magabrotheeeer/render-ledger/internal/storage"
)

// События платёжного провайдера, после которых план считается оплаченным.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventInvoicePaid       = "invoice.paid"
)

// Outcome итог обработки изменения плана.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeUnchanged      Outcome = "unchanged"
	OutcomeUnknownAccount Outcome = "unknown_account"
	OutcomeUnknownPlan    Outcome = "unknown_plan"
	OutcomeIgnored        Outcome = "ignored"
)

// ErrMalformedEvent возвращается для тела события, которое не является JSON объектом с типом.
var ErrMalformedEvent = errors.New("malformed billing event")

// errSkip прерывает операцию Store без записи.
var errSkip = errors.New("skip")

// Store сериализованный доступ к коллекции учётных записей.
type Store interface {
	Update(ctx context.Context, work storage.WorkFunc) error
}

// Service переводит учётные записи на оплаченные планы.
type Service struct {
	store  Store
	engine *ledger.Engine
	log    *slog.Logger
	now    func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New создаёт Service.
func New(store Store, engine *ledger.Engine, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		engine: engine,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyPlanChange переводит учётную запись на план planID и начинает новый месячный цикл.
//
// Неизвестный адрес или план молча пропускаются. Повторное применение уже
// активного плана не сбрасывает счётчик.
func (s *Service) ApplyPlanChange(ctx context.Context, email, planID string) (Outcome, error) {
	const op = "services.billing.ApplyPlanChange"
	email = ledger.NormalizeEmail(email)

	plan, ok := s.engine.Catalog().Lookup(planID)
	if !ok {
		s.log.Warn("plan change for unknown plan ignored", slog.String("plan_id", planID), sl.Email(email))
		return OutcomeUnknownPlan, nil
	}

	outcome := OutcomeUnknownAccount
	err := s.store.Update(ctx, func(c *storage.Collection) error {
		i, ok := c.Find(email)
		if !ok {
			return errSkip
		}
		acc, changed := s.engine.ApplyPlan(c.Accounts[i], plan, s.now())
		c.Put(i, acc.Record())
		if !changed {
			outcome = OutcomeUnchanged
			return nil
		}
		outcome = OutcomeApplied
		return nil
	})
	if err != nil && !errors.Is(err, errSkip) {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("plan change processed",
		slog.String("plan_id", plan.ID), slog.String("outcome", string(outcome)), sl.Email(email))
	return outcome, nil
}

// ProcessWebhookEvent разбирает событие платёжного провайдера и применяет план,
// если событие подтверждает оплату. Остальные события подтверждаются и пропускаются.
func (s *Service) ProcessWebhookEvent(ctx context.Context, payload []byte) (Outcome, error) {
	const op = "services.billing.ProcessWebhookEvent"

	if !gjson.ValidBytes(payload) {
		return "", fmt.Errorf("%s: %w", op, ErrMalformedEvent)
	}
	event := gjson.ParseBytes(payload)
	eventType := event.Get("type").String()
	if eventType == "" {
		return "", fmt.Errorf("%s: %w: missing type", op, ErrMalformedEvent)
	}
	log := s.log.With(slog.String("event_id", event.Get("id").String()), slog.String("event", eventType))

	switch eventType {
	case EventCheckoutCompleted, EventInvoicePaid:
	default:
		log.Debug("billing event ignored")
		metrics.BillingEventsTotal.WithLabelValues("other", string(OutcomeIgnored)).Inc()
		return OutcomeIgnored, nil
	}

	object := event.Get("data.object")
	email := object.Get("customer_email").String()
	if email == "" {
		email = object.Get("customer_details.email").String()
	}
	planID := object.Get("metadata.planId").String()
	if email == "" || planID == "" {
		log.Warn("billing event without email or plan", slog.String("plan_id", planID), sl.Email(email))
		metrics.BillingEventsTotal.WithLabelValues(eventType, string(OutcomeIgnored)).Inc()
		return OutcomeIgnored, nil
	}

	outcome, err := s.ApplyPlanChange(ctx, email, planID)
	if err != nil {
		metrics.BillingEventsTotal.WithLabelValues(eventType, "error").Inc()
		return "", fmt.Errorf("%s: %w", op, err)
	}
	metrics.BillingEventsTotal.WithLabelValues(eventType, string(outcome)).Inc()
	return outcome, nil
}
