// Package models содержит доменную модель учётной записи ledger-а:
// сохраняемую запись, нормализованное представление и внешний вид без секретов.
package models

import "time"

// Credential хранит парольный материал учётной записи. Наружу не отдаётся.
type Credential struct {
	Salt string `json:"salt"` // base64 соль, уникальная для каждого пароля
	Hash string `json:"hash"` // base64 результат KDF
}

// AccountRecord запись в том виде, в каком она лежит в хранилище.
// Необязательные поля хранятся указателями: отсутствие значения отличается от нуля.
type AccountRecord struct {
	ID                      string     `json:"id"`
	Name                    string     `json:"name"`
	Email                   string     `json:"email"`
	Credential              Credential `json:"credential"`
	EmailVerified           bool       `json:"emailVerified"`
	VerificationCode        string     `json:"verificationCode,omitempty"`
	VerificationExpiresAt   *time.Time `json:"verificationExpiresAt,omitempty"`
	ResetCode               string     `json:"resetCode,omitempty"`
	ResetExpiresAt          *time.Time `json:"resetExpiresAt,omitempty"`
	PlanID                  string     `json:"planId,omitempty"`
	TrialStartedAt          *time.Time `json:"trialStartedAt,omitempty"`
	TrialEndsAt             *time.Time `json:"trialEndsAt,omitempty"`
	TrialRendersLimit       *int       `json:"trialRendersLimit,omitempty"`
	TrialRendersUsed        *int       `json:"trialRendersUsed,omitempty"`
	FreeMonthlyRendersLimit *int       `json:"freeMonthlyRendersLimit,omitempty"`
	FreeMonthlyRendersUsed  *int       `json:"freeMonthlyRendersUsed,omitempty"`
	FreeMonthlyPeriod       string     `json:"freeMonthlyPeriod,omitempty"`
	TrialEndingNotifiedAt   *time.Time `json:"trialEndingNotifiedAt,omitempty"`
	CreatedAt               *time.Time `json:"createdAt,omitempty"`
}

// Account нормализованная учётная запись. Все счётчики заполнены,
// период и лимиты согласованы с каталогом планов.
type Account struct {
	ID                      string
	Name                    string
	Email                   string
	Credential              Credential
	EmailVerified           bool
	VerificationCode        string
	VerificationExpiresAt   *time.Time
	ResetCode               string
	ResetExpiresAt          *time.Time
	PlanID                  string
	TrialStartedAt          *time.Time
	TrialEndsAt             *time.Time
	TrialRendersLimit       int
	TrialRendersUsed        int
	FreeMonthlyRendersLimit int
	FreeMonthlyRendersUsed  int
	FreeMonthlyPeriod       string
	TrialEndingNotifiedAt   *time.Time
	CreatedAt               time.Time
}

// AccountView представление учётной записи для внешнего слоя, без пароля и кодов.
type AccountView struct {
	ID                      string     `json:"id"`
	Name                    string     `json:"name"`
	Email                   string     `json:"email"`
	EmailVerified           bool       `json:"email_verified"`
	PlanID                  string     `json:"plan_id"`
	TrialStartedAt          *time.Time `json:"trial_started_at,omitempty"`
	TrialEndsAt             *time.Time `json:"trial_ends_at,omitempty"`
	TrialRendersLimit       int        `json:"trial_renders_limit"`
	TrialRendersUsed        int        `json:"trial_renders_used"`
	FreeMonthlyRendersLimit int        `json:"free_monthly_renders_limit"`
	FreeMonthlyRendersUsed  int        `json:"free_monthly_renders_used"`
	FreeMonthlyPeriod       string     `json:"free_monthly_period"`
	CreatedAt               time.Time  `json:"created_at"`
}

// Record переводит нормализованную запись обратно в формат хранилища.
func (a Account) Record() AccountRecord {
	createdAt := a.CreatedAt
	return AccountRecord{
		ID:                      a.ID,
		Name:                    a.Name,
		Email:                   a.Email,
		Credential:              a.Credential,
		EmailVerified:           a.EmailVerified,
		VerificationCode:        a.VerificationCode,
		VerificationExpiresAt:   a.VerificationExpiresAt,
		ResetCode:               a.ResetCode,
		ResetExpiresAt:          a.ResetExpiresAt,
		PlanID:                  a.PlanID,
		TrialStartedAt:          a.TrialStartedAt,
		TrialEndsAt:             a.TrialEndsAt,
		TrialRendersLimit:       intPtr(a.TrialRendersLimit),
		TrialRendersUsed:        intPtr(a.TrialRendersUsed),
		FreeMonthlyRendersLimit: intPtr(a.FreeMonthlyRendersLimit),
		FreeMonthlyRendersUsed:  intPtr(a.FreeMonthlyRendersUsed),
		FreeMonthlyPeriod:       a.FreeMonthlyPeriod,
		TrialEndingNotifiedAt:   a.TrialEndingNotifiedAt,
		CreatedAt:               &createdAt,
	}
}

// View возвращает безопасное для выдачи наружу представление.
func (a Account) View() AccountView {
	return AccountView{
		ID:                      a.ID,
		Name:                    a.Name,
		Email:                   a.Email,
		EmailVerified:           a.EmailVerified,
		PlanID:                  a.PlanID,
		TrialStartedAt:          a.TrialStartedAt,
		TrialEndsAt:             a.TrialEndsAt,
		TrialRendersLimit:       a.TrialRendersLimit,
		TrialRendersUsed:        a.TrialRendersUsed,
		FreeMonthlyRendersLimit: a.FreeMonthlyRendersLimit,
		FreeMonthlyRendersUsed:  a.FreeMonthlyRendersUsed,
		FreeMonthlyPeriod:       a.FreeMonthlyPeriod,
		CreatedAt:               a.CreatedAt,
	}
}

func intPtr(v int) *int {
	return &v
}
