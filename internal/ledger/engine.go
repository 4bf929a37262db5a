// Package ledger реализует учёт квоты рендеров: нормализацию сохранённой записи,
// пробный период, вычисление состояния квоты и списание одного рендера.
//
// Все функции пакета чистые: время передаётся параметром, ввода-вывода нет.
// Сериализованный доступ к хранилищу обеспечивает пакет storage.
package ledger

import (
	"strings"
	"time"

	"github.com/magabrotheeeer/render-ledger/internal/lib/month"
	"github.com/magabrotheeeer/render-ledger/internal/models"
	"github.com/magabrotheeeer/render-ledger/internal/plans"
)

// Settings задаёт параметры пробного периода.
type Settings struct {
	TrialDuration time.Duration
	TrialRenders  int
}

// DefaultSettings возвращает параметры пробного периода по умолчанию.
func DefaultSettings() Settings {
	return Settings{
		TrialDuration: 7 * 24 * time.Hour,
		TrialRenders:  15,
	}
}

// Engine машина состояний квоты поверх каталога планов.
type Engine struct {
	catalog  plans.Catalog
	settings Settings
}

// NewEngine создаёт Engine. Нулевые значения settings заменяются значениями по умолчанию.
func NewEngine(catalog plans.Catalog, settings Settings) *Engine {
	def := DefaultSettings()
	if settings.TrialDuration <= 0 {
		settings.TrialDuration = def.TrialDuration
	}
	if settings.TrialRenders <= 0 {
		settings.TrialRenders = def.TrialRenders
	}
	return &Engine{catalog: catalog, settings: settings}
}

// Catalog возвращает каталог планов, с которым работает движок.
func (e *Engine) Catalog() plans.Catalog {
	return e.catalog
}

// NormalizeEmail приводит адрес к каноническому виду: без пробелов по краям, в нижнем регистре.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Normalize строит согласованную учётную запись из сохранённой.
//
// Отсутствующие поля получают значения по умолчанию, месячный лимит
// пересчитывается из каталога, устаревший период сбрасывает счётчик.
// Повторная нормализация в том же месяце ничего не меняет.
func (e *Engine) Normalize(rec models.AccountRecord, now time.Time) models.Account {
	plan := e.planOrFree(rec.PlanID)
	freeLimit := valueOr(rec.FreeMonthlyRendersLimit, e.catalog.Free().MonthlyRenderLimit)

	acc := models.Account{
		ID:                      rec.ID,
		Name:                    rec.Name,
		Email:                   NormalizeEmail(rec.Email),
		Credential:              rec.Credential,
		EmailVerified:           rec.EmailVerified,
		VerificationCode:        rec.VerificationCode,
		VerificationExpiresAt:   rec.VerificationExpiresAt,
		ResetCode:               rec.ResetCode,
		ResetExpiresAt:          rec.ResetExpiresAt,
		PlanID:                  plan.ID,
		TrialStartedAt:          rec.TrialStartedAt,
		TrialEndsAt:             rec.TrialEndsAt,
		TrialRendersLimit:       valueOr(rec.TrialRendersLimit, e.settings.TrialRenders),
		TrialRendersUsed:        nonNegative(valueOr(rec.TrialRendersUsed, 0)),
		FreeMonthlyRendersLimit: freeLimit,
		FreeMonthlyRendersUsed:  nonNegative(valueOr(rec.FreeMonthlyRendersUsed, 0)),
		FreeMonthlyPeriod:       rec.FreeMonthlyPeriod,
		TrialEndingNotifiedAt:   rec.TrialEndingNotifiedAt,
	}
	if rec.CreatedAt != nil {
		acc.CreatedAt = *rec.CreatedAt
	} else {
		acc.CreatedAt = now
	}
	if acc.VerificationCode == "" {
		acc.VerificationExpiresAt = nil
	}
	if acc.ResetCode == "" {
		acc.ResetExpiresAt = nil
	}

	if plan.HasFiniteLimit() {
		acc.FreeMonthlyRendersLimit = plan.MonthlyRenderLimit
	}

	if !month.IsCurrent(acc.FreeMonthlyPeriod, now) {
		acc.FreeMonthlyRendersUsed = 0
		acc.FreeMonthlyPeriod = month.Tag(now)
	}
	return acc
}

// ActivateTrialIfEligible запускает пробный период у подтверждённой учётной записи,
// если он ещё ни разу не запускался. В остальных случаях ничего не делает.
func (e *Engine) ActivateTrialIfEligible(acc models.Account, now time.Time) models.Account {
	if !acc.EmailVerified || acc.TrialStartedAt != nil {
		return acc
	}
	started := now
	ends := now.Add(e.settings.TrialDuration)
	acc.TrialStartedAt = &started
	acc.TrialEndsAt = &ends
	acc.TrialRendersUsed = 0
	return acc
}

// Prepare нормализует запись и запускает пробный период, если он положен.
// Вызывается перед каждым вычислением квоты.
func (e *Engine) Prepare(rec models.AccountRecord, now time.Time) models.Account {
	return e.ActivateTrialIfEligible(e.Normalize(rec, now), now)
}

// Snapshot вычисляет состояние квоты. Запись не изменяется.
func (e *Engine) Snapshot(acc models.Account, now time.Time) models.QuotaSnapshot {
	if !acc.EmailVerified {
		return models.QuotaSnapshot{
			State:   models.QuotaVerify,
			Blocked: true,
			Message: "Email verification is required before rendering.",
		}
	}

	plan := e.planOrFree(acc.PlanID)
	if !plan.Free {
		if plan.Unlimited {
			return models.QuotaSnapshot{
				State:   models.QuotaPaidUnlimited,
				Message: "Unlimited renders on the " + plan.Name + " plan.",
			}
		}
		limit := acc.FreeMonthlyRendersLimit
		if plan.HasFiniteLimit() {
			limit = plan.MonthlyRenderLimit
		}
		return limited(models.QuotaPaidLimited, limit, acc.FreeMonthlyRendersUsed,
			"Monthly renders of the "+plan.Name+" plan.",
			"Monthly render limit of the "+plan.Name+" plan reached.")
	}

	if trialActive(acc, now) {
		return limited(models.QuotaTrial, acc.TrialRendersLimit, acc.TrialRendersUsed,
			"Trial renders available.",
			"Trial render limit reached.")
	}

	return limited(models.QuotaFree, acc.FreeMonthlyRendersLimit, acc.FreeMonthlyRendersUsed,
		"Free monthly renders available.",
		"Free monthly render limit reached.")
}

// ConsumeResult итог попытки списать один рендер.
type ConsumeResult struct {
	Allowed  bool
	Account  models.Account
	Snapshot models.QuotaSnapshot
}

// Consume списывает один рендер. Это единственный путь увеличения счётчиков.
//
// При заблокированной квоте счётчики не меняются, а возвращается
// нормализованная запись и блокирующий срез.
func (e *Engine) Consume(rec models.AccountRecord, now time.Time) ConsumeResult {
	acc := e.Prepare(rec, now)
	snap := e.Snapshot(acc, now)
	if snap.Blocked {
		return ConsumeResult{Allowed: false, Account: acc, Snapshot: snap}
	}

	switch snap.State {
	case models.QuotaTrial:
		acc.TrialRendersUsed++
	case models.QuotaFree, models.QuotaPaidLimited:
		acc.FreeMonthlyRendersUsed++
	}

	return ConsumeResult{Allowed: true, Account: acc, Snapshot: e.Snapshot(acc, now)}
}

// ApplyPlan переводит учётную запись на план и начинает новый месячный цикл.
//
// Если план уже активен, счётчик не сбрасывается: changed=false.
func (e *Engine) ApplyPlan(rec models.AccountRecord, plan models.Plan, now time.Time) (acc models.Account, changed bool) {
	acc = e.Prepare(rec, now)
	if acc.PlanID == plan.ID {
		return acc, false
	}
	acc.PlanID = plan.ID
	acc.FreeMonthlyPeriod = month.Tag(now)
	acc.FreeMonthlyRendersUsed = 0
	if plan.HasFiniteLimit() {
		acc.FreeMonthlyRendersLimit = plan.MonthlyRenderLimit
	}
	return acc, true
}

// TrialEndsWithin сообщает, что активный пробный период закончится в пределах window.
func TrialEndsWithin(acc models.Account, now time.Time, window time.Duration) bool {
	if !trialActive(acc, now) {
		return false
	}
	return !acc.TrialEndsAt.After(now.Add(window))
}

func (e *Engine) planOrFree(id string) models.Plan {
	if p, ok := e.catalog.Lookup(id); ok {
		return p
	}
	return e.catalog.Free()
}

func trialActive(acc models.Account, now time.Time) bool {
	return acc.TrialEndsAt != nil && now.Before(*acc.TrialEndsAt)
}

func limited(state models.QuotaState, limit, used int, okMsg, blockedMsg string) models.QuotaSnapshot {
	remaining := max(0, limit-used)
	snap := models.QuotaSnapshot{
		State:     state,
		Blocked:   remaining == 0,
		Remaining: &remaining,
		Limit:     &limit,
		Used:      &used,
		Message:   okMsg,
	}
	if snap.Blocked {
		snap.Message = blockedMsg
	}
	return snap
}

func valueOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func nonNegative(v int) int {
	return max(0, v)
}
