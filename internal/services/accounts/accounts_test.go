package accounts_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/render-ledger/internal/ledger"
	"github.com/magabrotheeeer/render-ledger/internal/lib/password"
	"github.com/magabrotheeeer/render-ledger/internal/models"
	"github.com/magabrotheeeer/render-ledger/internal/plans"
	"github.com/magabrotheeeer/render-ledger/internal/services/accounts"
	"github.com/magabrotheeeer/render-ledger/internal/storage"
	"github.com/magabrotheeeer/render-ledger/internal/storage/memstore"
)

// Мок для Notifier
type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Notify(ctx context.Context, n models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *accounts.Service
	store    *storage.Store
	backend  *memstore.Backend
	clock    *clock
	notifier *NotifierMock
}

func newFixture(t *testing.T, settings ledger.Settings) *fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := memstore.New()
	store := storage.New(backend, log)
	t.Cleanup(func() { _ = store.Close() })

	clk := &clock{now: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)}
	notifier := new(NotifierMock)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(nil).Maybe()

	engine := ledger.NewEngine(plans.Default(), settings)
	svc := accounts.New(store, engine, notifier, log, accounts.DefaultSettings(), accounts.WithClock(clk.Now))
	return &fixture{svc: svc, store: store, backend: backend, clock: clk, notifier: notifier}
}

// seed кладёт запись напрямую в хранилище, минуя регистрацию.
func (f *fixture) seed(t *testing.T, rec models.AccountRecord) {
	t.Helper()
	err := f.store.Update(context.Background(), func(c *storage.Collection) error {
		c.Insert(rec)
		return nil
	})
	require.NoError(t, err)
}

func (f *fixture) record(t *testing.T, email string) models.AccountRecord {
	t.Helper()
	var rec models.AccountRecord
	err := f.store.View(context.Background(), func(c *storage.Collection) error {
		i, ok := c.Find(email)
		require.True(t, ok)
		rec = c.Accounts[i]
		return nil
	})
	require.NoError(t, err)
	return rec
}

func (f *fixture) registerVerified(t *testing.T, email, pass string) {
	t.Helper()
	ctx := context.Background()
	reg, err := f.svc.Register(ctx, "Ana", email, pass)
	require.NoError(t, err)
	_, err = f.svc.VerifyEmail(ctx, email, reg.VerificationCode)
	require.NoError(t, err)
}

func TestService_Register(t *testing.T) {
	f := newFixture(t, ledger.DefaultSettings())
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, " Ana ", "ana@x.com", "password1")
	require.NoError(t, err)

	assert.NotEmpty(t, reg.Account.ID)
	assert.Equal(t, "Ana", reg.Account.Name)
	assert.Equal(t, "ana@x.com", reg.Account.Email)
	assert.False(t, reg.Account.EmailVerified)
	assert.Equal(t, plans.FreeID, reg.Account.PlanID)
	assert.Nil(t, reg.Account.TrialStartedAt)
	assert.Len(t, reg.VerificationCode, 6)

	f.notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
		return n.Kind == models.NotificationVerification &&
			n.Email == "ana@x.com" &&
			n.Code == reg.VerificationCode &&
			n.ExpiresAt != nil && n.ExpiresAt.Equal(f.clock.Now().Add(24*time.Hour))
	}))

	rec := f.record(t, "ana@x.com")
	assert.True(t, password.Verify("password1", rec.Credential))
	assert.Equal(t, "2024-05", rec.FreeMonthlyPeriod)

	tests := []struct {
		name  string
		email string
	}{
		{name: "same email", email: "ana@x.com"},
		{name: "different case", email: "Ana@X.com"},
		{name: "surrounding spaces", email: "  ana@x.com "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, "Ana", tt.email, "password1")
			require.ErrorIs(t, err, ledger.ErrDuplicateEmail)
		})
	}

	var count int
	require.NoError(t, f.store.View(ctx, func(c *storage.Collection) error {
		count = c.Len()
		return nil
	}))
	assert.Equal(t, 1, count)
}

func TestService_RegisterNotificationFailureIsNotFatal(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.New(memstore.New(), log)
	t.Cleanup(func() { _ = store.Close() })

	notifier := new(NotifierMock)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	svc := accounts.New(store, ledger.NewEngine(plans.Default(), ledger.DefaultSettings()), notifier, log, accounts.Settings{})

	reg, err := svc.Register(context.Background(), "Bob", "bob@x.com", "password1")
	require.NoError(t, err)
	assert.NotEmpty(t, reg.VerificationCode)
	notifier.AssertExpectations(t)
}

func TestService_Login(t *testing.T) {
	f := newFixture(t, ledger.DefaultSettings())
	ctx := context.Background()

	f.registerVerified(t, "ana@x.com", "password1")
	_, err := f.svc.Register(ctx, "Unverified", "new@x.com", "password1")
	require.NoError(t, err)

	tests := []struct {
		name    string
		email   string
		pass    string
		wantErr error
	}{
		{name: "unknown email", email: "nobody@x.com", pass: "password1", wantErr: ledger.ErrNotFound},
		{name: "wrong password", email: "ana@x.com", pass: "password2", wantErr: ledger.ErrInvalidPassword},
		{name: "unverified", email: "new@x.com", pass: "password1", wantErr: ledger.ErrVerificationRequired},
		{name: "unverified with wrong password", email: "new@x.com", pass: "nope-nope", wantErr: ledger.ErrInvalidPassword},
		{name: "success", email: "ANA@x.com", pass: "password1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := f.svc.Login(ctx, tt.email, tt.pass)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ana@x.com", profile.Account.Email)
			assert.Equal(t, models.QuotaTrial, profile.Quota.State)
			require.NotNil(t, profile.Account.TrialStartedAt)
		})
	}
}

// hookedStore вызывает afterView один раз сразу после первого View.
type hookedStore struct {
	*storage.Store
	once      sync.Once
	afterView func()
}

func (h *hookedStore) View(ctx context.Context, work storage.WorkFunc) error {
	err := h.Store.View(ctx, work)
	h.once.Do(h.afterView)
	return err
}

func TestService_LoginRejectsPasswordReplacedMidway(t *testing.T) {
	f := newFixture(t, ledger.DefaultSettings())
	ctx := context.Background()
	f.registerVerified(t, "ana@x.com", "oldpassword")

	resetCode, err := f.svc.RequestPasswordReset(ctx, "ana@x.com")
	require.NoError(t, err)

	hooked := &hookedStore{Store: f.store}
	hooked.afterView = func() {
		require.NoError(t, f.svc.ConfirmPasswordReset(ctx, "ana@x.com", resetCode, "newpassword"))
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := ledger.NewEngine(plans.Default(), ledger.DefaultSettings())
	svc := accounts.New(hooked, engine, f.notifier, log, accounts.DefaultSettings(), accounts.WithClock(f.clock.Now))

	_, err = svc.Login(ctx, "ana@x.com", "oldpassword")
	require.ErrorIs(t, err, ledger.ErrInvalidPassword)

	profile, err := svc.Login(ctx, "ana@x.com", "newpassword")
	require.NoError(t, err)
	assert.Equal(t, "ana@x.com", profile.Account.Email)
}

func TestService_VerifyEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid code", func(t *testing.T) {
		f := newFixture(t, ledger.DefaultSettings())
		reg, err := f.svc.Register(ctx, "Ana", "ana@x.com", "password1")
		require.NoError(t, err)

		wrong := "000000"
		if reg.VerificationCode == wrong {
			wrong = "111111"
		}
		_, err = f.svc.VerifyEmail(ctx, "ana@x.com", wrong)
		require.ErrorIs(t, err, ledger.ErrInvalidCode)
		assert.False(t, f.record(t, "ana@x.com").EmailVerified)
	})

	t.Run("expired code leaves account unverified", func(t *testing.T) {
		f := newFixture(t, ledger.DefaultSettings())
		reg, err := f.svc.Register(ctx, "Ana", "ana@x.com", "password1")
		require.NoError(t, err)

		f.clock.Advance(25 * time.Hour)
		_, err = f.svc.VerifyEmail(ctx, "ana@x.com", reg.VerificationCode)
		require.ErrorIs(t, err, ledger.ErrCodeExpired)

		rec := f.record(t, "ana@x.com")
		assert.False(t, rec.EmailVerified)
		assert.Equal(t, reg.VerificationCode, rec.VerificationCode)
	})

	t.Run("unknown email", func(t *testing.T) {
		f := newFixture(t, ledger.DefaultSettings())
		_, err := f.svc.VerifyEmail(ctx, "nobody@x.com", "123456")
		require.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("success is idempotent", func(t *testing.T) {
		f := newFixture(t, ledger.DefaultSettings())
		reg, err := f.svc.Register(ctx, "Ana", "ana@x.com", "password1")
		require.NoError(t, err)

		first, err := f.svc.VerifyEmail(ctx, "ana@x.com", " "+reg.VerificationCode+" ")
		require.NoError(t, err)
		assert.False(t, first.AlreadyVerified)
		assert.True(t, first.Account.EmailVerified)
		assert.Equal(t, models.QuotaTrial, first.Quota.State)

		afterFirst := f.record(t, "ana@x.com")
		assert.Empty(t, afterFirst.VerificationCode)
		assert.Nil(t, afterFirst.VerificationExpiresAt)

		second, err := f.svc.VerifyEmail(ctx, "ana@x.com", reg.VerificationCode)
		require.NoError(t, err)
		assert.True(t, second.AlreadyVerified)
		assert.Equal(t, first.Account, second.Account)
		assert.Equal(t, afterFirst, f.record(t, "ana@x.com"))
	})
}

func TestService_ResendVerification(t *testing.T) {
	f := newFixture(t, ledger.DefaultSettings())
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, "Ana", "ana@x.com", "password1")
	require.NoError(t, err)

	f.clock.Advance(30 * time.Hour)
	newCode, err := f.svc.ResendVerification(ctx, "ana@x.com")
	require.NoError(t, err)
	require.Len(t, newCode, 6)

	rec := f.record(t, "ana@x.com")
	assert.Equal(t, newCode, rec.VerificationCode)
	require.NotNil(t, rec.VerificationExpiresAt)
	assert.True(t, rec.VerificationExpiresAt.Equal(f.clock.Now().Add(24*time.Hour)))

	if newCode != reg.VerificationCode {
		_, err = f.svc.VerifyEmail(ctx, "ana@x.com", reg.VerificationCode)
		require.ErrorIs(t, err, ledger.ErrInvalidCode)
	}
	_, err = f.svc.VerifyEmail(ctx, "ana@x.com", newCode)
	require.NoError(t, err)

	again, err := f.svc.ResendVerification(ctx, "ana@x.com")
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Empty(t, f.record(t, "ana@x.com").VerificationCode)

	_, err = f.svc.ResendVerification(ctx, "nobody@x.com")
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown email", func(t *testing.T) {
		f := newFixture(t, ledger.DefaultSettings())
		_, err := f.svc.RequestPasswordReset(ctx, "nobody@x.com")
		require.ErrorIs(t, err, ledger.ErrNotFound)

		err = f.svc.ConfirmPasswordReset(ctx, "nobody@x.com", "123456", "password2")
		require.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("no reset in progress", func(t *testing.T) {
		f := newFixture(t, ledger.DefaultSettings())
		f.registerVerified(t, "ana@x.com", "password1")

		err := f.svc.ConfirmPasswordReset(ctx, "ana@x.com", "123456", "password2")
		require.ErrorIs(t, err, ledger.ErrInvalidCode)
	})

	t.Run("expired code", func(t *testing.T) {
		f := newFixture(t, ledger.DefaultSettings())
		f.registerVerified(t, "ana@x.com", "password1")

		resetCode, err := f.svc.RequestPasswordReset(ctx, "ana@x.com")
		require.NoError(t, err)

		f.clock.Advance(16 * time.Minute)
		err = f.svc.ConfirmPasswordReset(ctx, "ana@x.com", resetCode, "password2")
		require.ErrorIs(t, err, ledger.ErrCodeExpired)

		_, err = f.svc.Login(ctx, "ana@x.com", "password1")
		require.NoError(t, err)
	})

	t.Run("new request replaces previous code", func(t *testing.T) {
		f := newFixture(t, ledger.DefaultSettings())
		f.registerVerified(t, "ana@x.com", "password1")

		first, err := f.svc.RequestPasswordReset(ctx, "ana@x.com")
		require.NoError(t, err)
		second, err := f.svc.RequestPasswordReset(ctx, "ana@x.com")
		require.NoError(t, err)

		assert.Equal(t, second, f.record(t, "ana@x.com").ResetCode)
		if first != second {
			err = f.svc.ConfirmPasswordReset(ctx, "ana@x.com", first, "password2")
			require.ErrorIs(t, err, ledger.ErrInvalidCode)
		}
	})

	t.Run("success is single use", func(t *testing.T) {
		f := newFixture(t, ledger.DefaultSettings())
		f.registerVerified(t, "ana@x.com", "password1")

		resetCode, err := f.svc.RequestPasswordReset(ctx, "Ana@X.com")
		require.NoError(t, err)
		f.notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(n models.Notification) bool {
			return n.Kind == models.NotificationReset && n.Code == resetCode
		}))

		require.NoError(t, f.svc.ConfirmPasswordReset(ctx, "ana@x.com", resetCode, "password2"))

		rec := f.record(t, "ana@x.com")
		assert.Empty(t, rec.ResetCode)
		assert.Nil(t, rec.ResetExpiresAt)

		_, err = f.svc.Login(ctx, "ana@x.com", "password1")
		require.ErrorIs(t, err, ledger.ErrInvalidPassword)
		_, err = f.svc.Login(ctx, "ana@x.com", "password2")
		require.NoError(t, err)

		err = f.svc.ConfirmPasswordReset(ctx, "ana@x.com", resetCode, "password3")
		require.ErrorIs(t, err, ledger.ErrInvalidCode)
	})
}

func TestService_GetProfile(t *testing.T) {
	f := newFixture(t, ledger.DefaultSettings())
	ctx := context.Background()

	_, err := f.svc.GetProfile(ctx, "nobody@x.com")
	require.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.svc.Register(ctx, "Ana", "ana@x.com", "password1")
	require.NoError(t, err)

	profile, err := f.svc.GetProfile(ctx, "ana@x.com")
	require.NoError(t, err)
	assert.Equal(t, models.QuotaVerify, profile.Quota.State)
	assert.True(t, profile.Quota.Blocked)

	// подтверждённая учётная запись без пробного периода, как после миграции старых данных
	f.seed(t, models.AccountRecord{ID: "legacy", Email: "old@x.com", EmailVerified: true})

	profile, err = f.svc.GetProfile(ctx, "old@x.com")
	require.NoError(t, err)
	assert.Equal(t, models.QuotaTrial, profile.Quota.State)
	require.NotNil(t, profile.Account.TrialStartedAt)
	assert.True(t, profile.Account.TrialStartedAt.Equal(f.clock.Now()))

	started := *f.record(t, "old@x.com").TrialStartedAt
	f.clock.Advance(time.Hour)
	profile, err = f.svc.GetProfile(ctx, "old@x.com")
	require.NoError(t, err)
	assert.True(t, profile.Account.TrialStartedAt.Equal(started))
}

func TestService_ConsumeRender(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown email", func(t *testing.T) {
		f := newFixture(t, ledger.DefaultSettings())
		_, err := f.svc.ConsumeRender(ctx, "nobody@x.com")
		require.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("unverified account is blocked", func(t *testing.T) {
		f := newFixture(t, ledger.DefaultSettings())
		_, err := f.svc.Register(ctx, "Ana", "ana@x.com", "password1")
		require.NoError(t, err)

		res, err := f.svc.ConsumeRender(ctx, "ana@x.com")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, models.QuotaVerify, res.Quota.State)
	})

	t.Run("first render starts trial", func(t *testing.T) {
		f := newFixture(t, ledger.DefaultSettings())
		f.seed(t, models.AccountRecord{ID: "1", Email: "ana@x.com", EmailVerified: true, PlanID: plans.FreeID})

		res, err := f.svc.ConsumeRender(ctx, "ana@x.com")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, models.QuotaTrial, res.Quota.State)
		assert.Equal(t, 14, res.Quota.RemainingOr(-1))

		rec := f.record(t, "ana@x.com")
		require.NotNil(t, rec.TrialStartedAt)
		assert.True(t, rec.TrialStartedAt.Equal(f.clock.Now()))
		assert.Equal(t, 1, *rec.TrialRendersUsed)
	})

	t.Run("falls back to free quota after trial", func(t *testing.T) {
		f := newFixture(t, ledger.DefaultSettings())
		f.registerVerified(t, "ana@x.com", "password1")

		f.clock.Advance(8 * 24 * time.Hour)
		res, err := f.svc.ConsumeRender(ctx, "ana@x.com")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, models.QuotaFree, res.Quota.State)
		assert.Equal(t, 4, res.Quota.RemainingOr(-1))
	})

	t.Run("persistence failure is transient", func(t *testing.T) {
		f := newFixture(t, ledger.DefaultSettings())
		f.seed(t, models.AccountRecord{ID: "1", Email: "ana@x.com", EmailVerified: true})
		f.backend.FailSaves(errors.New("disk full"))

		_, err := f.svc.ConsumeRender(ctx, "ana@x.com")
		require.ErrorIs(t, err, ledger.ErrPersistence)
		assert.True(t, ledger.IsTransient(err))

		f.backend.FailSaves(nil)
		assert.Nil(t, f.record(t, "ana@x.com").TrialStartedAt)
	})
}

func TestService_ConsumeRenderConcurrent(t *testing.T) {
	const (
		remaining = 7
		callers   = 40
	)
	f := newFixture(t, ledger.Settings{TrialRenders: remaining})
	f.seed(t, models.AccountRecord{ID: "1", Email: "ana@x.com", EmailVerified: true})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	start := make(chan struct{})
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := f.svc.ConsumeRender(context.Background(), "ana@x.com")
			if !assert.NoError(t, err) {
				return
			}
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, remaining, allowed)

	rec := f.record(t, "ana@x.com")
	require.NotNil(t, rec.TrialRendersUsed)
	assert.Equal(t, remaining, *rec.TrialRendersUsed)
	assert.Equal(t, 0, *rec.FreeMonthlyRendersUsed)
}
