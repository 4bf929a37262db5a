package models

// PlanKind различает подписки и разовые пакеты рендеров.
type PlanKind string

const (
	// PlanKindSubscription ежемесячная подписка.
	PlanKindSubscription PlanKind = "subscription"
	// PlanKindCredits разовая покупка пакета рендеров.
	PlanKindCredits PlanKind = "credits"
)

// Plan описывает тарифный план каталога.
type Plan struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	MonthlyPriceCents  int      `json:"monthly_price_cents"`
	MonthlyRenderLimit int      `json:"monthly_render_limit"`
	Unlimited          bool     `json:"unlimited"`
	Free               bool     `json:"free"`
	Kind               PlanKind `json:"kind"`
}

// HasFiniteLimit сообщает, задаёт ли план конечный месячный лимит.
func (p Plan) HasFiniteLimit() bool {
	return !p.Unlimited && p.MonthlyRenderLimit > 0
}

// BillingCycle период оплаты при оформлении подписки.
type BillingCycle string

const (
	BillingMonthly BillingCycle = "monthly"
	BillingAnnual  BillingCycle = "annual"
)
