// Package accounts реализует операции над учётной записью: регистрацию, вход,
// подтверждение почты, сброс пароля, профиль и списание рендеров.
//
// Каждая операция целиком выполняется внутри одной критической секции Store:
// чтение, нормализация, изменение и запись. Хэширование пароля и отправка
// уведомлений вынесены за пределы секции.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/render-ledger/internal/ledger"
	"github.com/magabrotheeeer/render-ledger/internal/lib/code"
	"github.com/magabrotheeeer/render-ledger/internal/lib/password"
	"github.com/magabrotheeeer/render-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/render-ledger/internal/metrics"
	"github.com/magabrotheeeer/render-ledger/internal/models"
	"github.com/magabrotheeeer/render-ledger/internal/storage"
)

// Store сериализованный доступ к коллекции учётных записей.
type Store interface {
	Update(ctx context.Context, work storage.WorkFunc) error
	View(ctx context.Context, work storage.WorkFunc) error
}

// Notifier доставляет письма с кодами. Ошибка доставки не отменяет операцию.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Settings сроки жизни одноразовых кодов.
type Settings struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// DefaultSettings возвращает сроки жизни кодов по умолчанию.
func DefaultSettings() Settings {
	return Settings{
		VerificationTTL: 24 * time.Hour,
		ResetTTL:        15 * time.Minute,
	}
}

// Profile учётная запись вместе с текущим состоянием квоты.
type Profile struct {
	Account models.AccountView   `json:"account"`
	Quota   models.QuotaSnapshot `json:"quota"`
}

// Registration результат регистрации.
type Registration struct {
	Account          models.AccountView
	VerificationCode string
}

// Verification результат подтверждения почты.
type Verification struct {
	Profile
	AlreadyVerified bool
}

// RenderResult результат попытки списать рендер.
type RenderResult struct {
	Allowed bool                 `json:"allowed"`
	Quota   models.QuotaSnapshot `json:"quota"`
}

// Service операции над учётными записями.
type Service struct {
	store    Store
	engine   *ledger.Engine
	notifier Notifier
	log      *slog.Logger
	settings Settings
	now      func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New создаёт Service. Нулевые сроки в settings заменяются значениями по умолчанию.
func New(store Store, engine *ledger.Engine, notifier Notifier, log *slog.Logger, settings Settings, opts ...Option) *Service {
	def := DefaultSettings()
	if settings.VerificationTTL <= 0 {
		settings.VerificationTTL = def.VerificationTTL
	}
	if settings.ResetTTL <= 0 {
		settings.ResetTTL = def.ResetTTL
	}
	s := &Service{
		store:    store,
		engine:   engine,
		notifier: notifier,
		log:      log,
		settings: settings,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register создаёт неподтверждённую учётную запись на бесплатном плане
// и выдаёт код подтверждения почты.
func (s *Service) Register(ctx context.Context, name, email, rawPassword string) (Registration, error) {
	const op = "services.accounts.Register"
	email = ledger.NormalizeEmail(email)

	cred, err := password.Hash(rawPassword)
	if err != nil {
		return Registration{}, fmt.Errorf("%s: %w", op, err)
	}
	verificationCode, err := code.Issue()
	if err != nil {
		return Registration{}, fmt.Errorf("%s: %w", op, err)
	}
	id := uuid.NewString()

	var reg Registration
	var expires time.Time
	err = s.store.Update(ctx, func(c *storage.Collection) error {
		if _, ok := c.Find(email); ok {
			return ledger.ErrDuplicateEmail
		}
		now := s.now()
		expires = code.ExpiryFromNow(now, s.settings.VerificationTTL)
		acc := s.engine.Normalize(models.AccountRecord{
			ID:                    id,
			Name:                  strings.TrimSpace(name),
			Email:                 email,
			Credential:            cred,
			VerificationCode:      verificationCode,
			VerificationExpiresAt: &expires,
			PlanID:                s.engine.Catalog().Free().ID,
			CreatedAt:             &now,
		}, now)
		c.Insert(acc.Record())
		reg = Registration{Account: acc.View(), VerificationCode: verificationCode}
		return nil
	})
	if err != nil {
		return Registration{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("account registered", slog.String("account_id", id), sl.Email(email))
	s.notify(ctx, models.Notification{
		Kind:      models.NotificationVerification,
		Email:     email,
		Name:      reg.Account.Name,
		Code:      verificationCode,
		ExpiresAt: &expires,
	})
	return reg, nil
}

// Login проверяет пароль и возвращает профиль подтверждённой учётной записи.
//
// Пароль сверяется вне критической секции по снимку учётных данных. Профиль
// читается отдельной операцией, которая убеждается, что хеш не сменился с
// момента снимка, и может запустить пробный период.
func (s *Service) Login(ctx context.Context, email, rawPassword string) (Profile, error) {
	const op = "services.accounts.Login"
	email = ledger.NormalizeEmail(email)

	var cred models.Credential
	err := s.store.View(ctx, func(c *storage.Collection) error {
		i, ok := c.Find(email)
		if !ok {
			return ledger.ErrNotFound
		}
		cred = c.Accounts[i].Credential
		return nil
	})
	if errors.Is(err, ledger.ErrNotFound) {
		// Неизвестная почта проверяется так же долго, как известная.
		password.Verify(rawPassword, password.Dummy)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("%s: %w", op, err)
	}
	if !password.Verify(rawPassword, cred) {
		return Profile{}, fmt.Errorf("%s: %w", op, ledger.ErrInvalidPassword)
	}

	profile, err := s.profile(ctx, email, func(acc models.AccountRecord) error {
		if acc.Credential.Hash != cred.Hash {
			return ledger.ErrInvalidPassword
		}
		if !acc.EmailVerified {
			return ledger.ErrVerificationRequired
		}
		return nil
	})
	if err != nil {
		return Profile{}, fmt.Errorf("%s: %w", op, err)
	}
	return profile, nil
}

// GetProfile возвращает профиль и состояние квоты. Чтение может запустить пробный период.
func (s *Service) GetProfile(ctx context.Context, email string) (Profile, error) {
	const op = "services.accounts.GetProfile"
	profile, err := s.profile(ctx, ledger.NormalizeEmail(email), nil)
	if err != nil {
		return Profile{}, fmt.Errorf("%s: %w", op, err)
	}
	return profile, nil
}

// profile читает профиль в критической секции. guard, если задан, проверяет
// запись до нормализации и может отклонить операцию.
func (s *Service) profile(ctx context.Context, email string, guard func(models.AccountRecord) error) (Profile, error) {
	var profile Profile
	err := s.store.Update(ctx, func(c *storage.Collection) error {
		i, ok := c.Find(email)
		if !ok {
			return ledger.ErrNotFound
		}
		if guard != nil {
			if err := guard(c.Accounts[i]); err != nil {
				return err
			}
		}
		now := s.now()
		acc := s.engine.Prepare(c.Accounts[i], now)
		c.Put(i, acc.Record())
		profile = Profile{Account: acc.View(), Quota: s.engine.Snapshot(acc, now)}
		return nil
	})
	return profile, err
}

// VerifyEmail подтверждает почту одноразовым кодом. Повторный вызов для уже
// подтверждённой учётной записи успешен и возвращает AlreadyVerified.
func (s *Service) VerifyEmail(ctx context.Context, email, verificationCode string) (Verification, error) {
	const op = "services.accounts.VerifyEmail"
	email = ledger.NormalizeEmail(email)
	verificationCode = strings.TrimSpace(verificationCode)

	var res Verification
	err := s.store.Update(ctx, func(c *storage.Collection) error {
		i, ok := c.Find(email)
		if !ok {
			return ledger.ErrNotFound
		}
		now := s.now()
		acc := s.engine.Normalize(c.Accounts[i], now)

		if acc.EmailVerified {
			res.AlreadyVerified = true
		} else {
			if err := checkCode(acc.VerificationCode, acc.VerificationExpiresAt, verificationCode, now); err != nil {
				return err
			}
			acc.EmailVerified = true
			acc.VerificationCode = ""
			acc.VerificationExpiresAt = nil
		}

		acc = s.engine.ActivateTrialIfEligible(acc, now)
		c.Put(i, acc.Record())
		res.Profile = Profile{Account: acc.View(), Quota: s.engine.Snapshot(acc, now)}
		return nil
	})
	if err != nil {
		return Verification{}, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// ResendVerification выдаёт новый код подтверждения взамен прежнего.
// Для подтверждённой учётной записи возвращает пустой код и ничего не меняет.
func (s *Service) ResendVerification(ctx context.Context, email string) (string, error) {
	const op = "services.accounts.ResendVerification"
	email = ledger.NormalizeEmail(email)

	newCode, err := code.Issue()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var issued bool
	var name string
	var expires time.Time
	err = s.store.Update(ctx, func(c *storage.Collection) error {
		i, ok := c.Find(email)
		if !ok {
			return ledger.ErrNotFound
		}
		now := s.now()
		acc := s.engine.Normalize(c.Accounts[i], now)
		if !acc.EmailVerified {
			expires = code.ExpiryFromNow(now, s.settings.VerificationTTL)
			acc.VerificationCode = newCode
			acc.VerificationExpiresAt = &expires
			issued = true
		}
		name = acc.Name
		c.Put(i, acc.Record())
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !issued {
		return "", nil
	}

	s.notify(ctx, models.Notification{
		Kind:      models.NotificationVerification,
		Email:     email,
		Name:      name,
		Code:      newCode,
		ExpiresAt: &expires,
	})
	return newCode, nil
}

// RequestPasswordReset выдаёт код сброса пароля, заменяя предыдущий.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	const op = "services.accounts.RequestPasswordReset"
	email = ledger.NormalizeEmail(email)

	resetCode, err := code.Issue()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	var name string
	var expires time.Time
	err = s.store.Update(ctx, func(c *storage.Collection) error {
		i, ok := c.Find(email)
		if !ok {
			return ledger.ErrNotFound
		}
		now := s.now()
		acc := s.engine.Normalize(c.Accounts[i], now)
		expires = code.ExpiryFromNow(now, s.settings.ResetTTL)
		acc.ResetCode = resetCode
		acc.ResetExpiresAt = &expires
		name = acc.Name
		c.Put(i, acc.Record())
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.notify(ctx, models.Notification{
		Kind:      models.NotificationReset,
		Email:     email,
		Name:      name,
		Code:      resetCode,
		ExpiresAt: &expires,
	})
	return resetCode, nil
}

// ConfirmPasswordReset меняет пароль по коду сброса и гасит код.
func (s *Service) ConfirmPasswordReset(ctx context.Context, email, resetCode, newPassword string) error {
	const op = "services.accounts.ConfirmPasswordReset"
	email = ledger.NormalizeEmail(email)
	resetCode = strings.TrimSpace(resetCode)

	cred, err := password.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.store.Update(ctx, func(c *storage.Collection) error {
		i, ok := c.Find(email)
		if !ok {
			return ledger.ErrNotFound
		}
		now := s.now()
		acc := s.engine.Normalize(c.Accounts[i], now)
		if err := checkCode(acc.ResetCode, acc.ResetExpiresAt, resetCode, now); err != nil {
			return err
		}
		acc.Credential = cred
		acc.ResetCode = ""
		acc.ResetExpiresAt = nil
		c.Put(i, acc.Record())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("password reset", sl.Email(email))
	return nil
}

// ConsumeRender списывает один рендер, если квота позволяет.
// Заблокированная попытка не ошибка: Allowed=false и срез с причиной.
func (s *Service) ConsumeRender(ctx context.Context, email string) (RenderResult, error) {
	const op = "services.accounts.ConsumeRender"
	email = ledger.NormalizeEmail(email)

	var res ledger.ConsumeResult
	err := s.store.Update(ctx, func(c *storage.Collection) error {
		i, ok := c.Find(email)
		if !ok {
			return ledger.ErrNotFound
		}
		res = s.engine.Consume(c.Accounts[i], s.now())
		c.Put(i, res.Account.Record())
		return nil
	})
	if err != nil {
		return RenderResult{}, fmt.Errorf("%s: %w", op, err)
	}

	result := "allowed"
	if !res.Allowed {
		result = "blocked"
	}
	metrics.RendersTotal.WithLabelValues(string(res.Snapshot.State), result).Inc()
	return RenderResult{Allowed: res.Allowed, Quota: res.Snapshot}, nil
}

// checkCode сверяет одноразовый код. Несовпадение проверяется раньше срока действия.
func checkCode(stored string, expiresAt *time.Time, given string, now time.Time) error {
	if stored == "" || given != stored {
		return ledger.ErrInvalidCode
	}
	if code.IsExpired(now, expiresAt) {
		return ledger.ErrCodeExpired
	}
	return nil
}

func (s *Service) notify(ctx context.Context, n models.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Error("failed to send notification",
			slog.String("kind", string(n.Kind)), sl.Email(n.Email), sl.Err(err))
	}
}
