package models

// QuotaState одно из взаимоисключающих состояний квоты учётной записи.
type QuotaState string

const (
	QuotaVerify        QuotaState = "verify"
	QuotaPaidUnlimited QuotaState = "paid_unlimited"
	QuotaPaidLimited   QuotaState = "paid_limited"
	QuotaTrial         QuotaState = "trial"
	QuotaFree          QuotaState = "free"
)

// QuotaSnapshot производный срез квоты на момент вычисления.
// Remaining, Limit и Used не заполняются для состояний без лимита.
type QuotaSnapshot struct {
	State     QuotaState `json:"state"`
	Blocked   bool       `json:"blocked"`
	Remaining *int       `json:"remaining,omitempty"`
	Limit     *int       `json:"limit,omitempty"`
	Used      *int       `json:"used,omitempty"`
	Message   string     `json:"message"`
}

// RemainingOr возвращает остаток или def, если лимит не задан.
func (s QuotaSnapshot) RemainingOr(def int) int {
	if s.Remaining == nil {
		return def
	}
	return *s.Remaining
}
