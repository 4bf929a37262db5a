// Package scheduler периодически напоминает о скором окончании пробного периода.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/magabrotheeeer/render-ledger/internal/ledger"
	"github.com/magabrotheeeer/render-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/render-ledger/internal/models"
	"github.com/magabrotheeeer/render-ledger/internal/storage"
)

var errNothingDue = errors.New("nothing due")

// Store сериализованный доступ к коллекции учётных записей.
type Store interface {
	Update(ctx context.Context, work storage.WorkFunc) error
}

// Notifier доставляет напоминания.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// SchedulerService ищет учётные записи, у которых пробный период скоро закончится.
type SchedulerService struct {
	store    Store
	engine   *ledger.Engine
	notifier Notifier
	log      *slog.Logger
	window   time.Duration
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// Option настраивает SchedulerService.
type Option func(*SchedulerService)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *SchedulerService) {
		s.now = now
	}
}

// NewSchedulerService создает новый экземпляр SchedulerService.
// window задаёт, за сколько до конца пробного периода отправляется напоминание.
func NewSchedulerService(store Store, engine *ledger.Engine, notifier Notifier, log *slog.Logger, window time.Duration, opts ...Option) *SchedulerService {
	if window <= 0 {
		window = 24 * time.Hour
	}
	s := &SchedulerService{
		store:    store,
		engine:   engine,
		notifier: notifier,
		log:      log,
		window:   window,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start запускает обход по расписанию spec в формате cron или @every.
func (s *SchedulerService) Start(ctx context.Context, spec string) error {
	const op = "services.scheduler.Start"
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("%s: scheduler is already running", op)
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		if _, err := s.RemindTrialEnding(ctx); err != nil {
			s.log.Error("trial reminder sweep failed", sl.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("%s: invalid schedule %q: %w", op, spec, err)
	}
	c.Start()
	s.cron = c

	s.log.Info("trial reminder scheduler started", slog.String("spec", spec), slog.Duration("window", s.window))
	return nil
}

// Stop останавливает расписание и ждёт завершения текущего обхода или отмены ctx.
func (s *SchedulerService) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
		s.log.Info("trial reminder scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("trial reminder scheduler stop timed out")
	}
}

// RemindTrialEnding отмечает учётные записи, у которых пробный период закончится
// в пределах окна, и отправляет каждой одно напоминание. Отметка ставится в
// критической секции, отправка идёт после неё. Возвращает число напоминаний.
func (s *SchedulerService) RemindTrialEnding(ctx context.Context) (int, error) {
	const op = "services.scheduler.RemindTrialEnding"
	var due []models.Notification

	err := s.store.Update(ctx, func(c *storage.Collection) error {
		now := s.now()
		for i, rec := range c.Accounts {
			if rec.TrialEndingNotifiedAt != nil || rec.TrialEndsAt == nil {
				continue
			}
			acc := s.engine.Normalize(rec, now)
			plan, ok := s.engine.Catalog().Lookup(acc.PlanID)
			if !acc.EmailVerified || !ok || !plan.Free {
				continue
			}
			if !ledger.TrialEndsWithin(acc, now, s.window) {
				continue
			}
			stamp := now
			acc.TrialEndingNotifiedAt = &stamp
			c.Put(i, acc.Record())

			ends := *acc.TrialEndsAt
			due = append(due, models.Notification{
				Kind:        models.NotificationTrialEnding,
				Email:       acc.Email,
				Name:        acc.Name,
				TrialEndsAt: &ends,
			})
		}
		if len(due) == 0 {
			return errNothingDue
		}
		return nil
	})
	if errors.Is(err, errNothingDue) {
		s.log.Debug("no trials ending soon")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("found trials ending soon", slog.Int("count", len(due)))
	sent := 0
	for _, n := range due {
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.log.Error("failed to publish trial reminder", sl.Email(n.Email), sl.Err(err))
			continue
		}
		sent++
	}
	return sent, nil
}
