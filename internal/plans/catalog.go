// Package plans содержит статический каталог тарифных планов:
// месячные лимиты рендеров, цены и вид плана.
package plans

import (
	"math"
	"sort"

	"github.com/magabrotheeeer/render-ledger/internal/models"
)

// Идентификаторы планов каталога.
const (
	FreeID         = "free"
	BasicID        = "basic"
	ProfessionalID = "professional"
	BusinessID     = "business"
	EnterpriseID   = "enterprise"
)

// AnnualDiscountRate скидка при годовой оплате.
const AnnualDiscountRate = 0.2

// Catalog описывает поиск плана по идентификатору. Ledger получает его извне.
type Catalog interface {
	Lookup(id string) (models.Plan, bool)
	Free() models.Plan
	All() []models.Plan
}

// Static неизменяемый каталог в памяти.
type Static struct {
	plans  map[string]models.Plan
	freeID string
}

// NewStatic собирает каталог из списка планов. Первый план с Free=true
// становится планом по умолчанию.
func NewStatic(list ...models.Plan) *Static {
	c := &Static{plans: make(map[string]models.Plan, len(list))}
	for _, p := range list {
		c.plans[p.ID] = p
		if p.Free && c.freeID == "" {
			c.freeID = p.ID
		}
	}
	return c
}

// Default возвращает каталог продукта.
func Default() *Static {
	return NewStatic(
		models.Plan{
			ID:                 FreeID,
			Name:               "Gratis",
			Description:        "Plan de prueba sin suscripcion.",
			MonthlyRenderLimit: 5,
			Free:               true,
			Kind:               models.PlanKindSubscription,
		},
		models.Plan{
			ID:                 BasicID,
			Name:               "Basico",
			Description:        "Tapiceros autonomos.",
			MonthlyPriceCents:  1900,
			MonthlyRenderLimit: 50,
			Kind:               models.PlanKindSubscription,
		},
		models.Plan{
			ID:                 ProfessionalID,
			Name:               "Profesional",
			Description:        "Decoradores y estudios de interiorismo.",
			MonthlyPriceCents:  4900,
			MonthlyRenderLimit: 200,
			Kind:               models.PlanKindSubscription,
		},
		models.Plan{
			ID:                 BusinessID,
			Name:               "Business",
			Description:        "Equipos contract y empresas.",
			MonthlyPriceCents:  9900,
			MonthlyRenderLimit: 1000,
			Kind:               models.PlanKindSubscription,
		},
		models.Plan{
			ID:                 EnterpriseID,
			Name:               "Enterprise",
			Description:        "Grandes estudios con soporte dedicado.",
			MonthlyPriceCents:  24900,
			MonthlyRenderLimit: 5000,
			Kind:               models.PlanKindSubscription,
		},
	)
}

// Lookup возвращает план по идентификатору.
func (c *Static) Lookup(id string) (models.Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// Free возвращает бесплатный план каталога.
func (c *Static) Free() models.Plan {
	return c.plans[c.freeID]
}

// All возвращает планы, отсортированные по цене.
func (c *Static) All() []models.Plan {
	out := make([]models.Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MonthlyPriceCents == out[j].MonthlyPriceCents {
			return out[i].ID < out[j].ID
		}
		return out[i].MonthlyPriceCents < out[j].MonthlyPriceCents
	})
	return out
}

// ResolveCycle приводит строку к периоду оплаты; всё, кроме "annual", означает помесячную оплату.
func ResolveCycle(value string) models.BillingCycle {
	if value == string(models.BillingAnnual) {
		return models.BillingAnnual
	}
	return models.BillingMonthly
}

// PriceCents возвращает сумму к оплате за период в центах.
// Годовая цена округляется до целых евро в месяц после скидки.
func PriceCents(plan models.Plan, cycle models.BillingCycle) int {
	if plan.Free {
		return 0
	}
	if cycle == models.BillingAnnual {
		monthlyEuros := math.Round(float64(plan.MonthlyPriceCents) / 100 * (1 - AnnualDiscountRate))
		return int(monthlyEuros) * 100 * 12
	}
	return plan.MonthlyPriceCents
}
