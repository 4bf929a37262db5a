// Package plans отдаёт каталог тарифов с ценами за месяц и за год.
package plans

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/render-ledger/internal/http/response"
	"github.com/magabrotheeeer/render-ledger/internal/models"
	catalog "github.com/magabrotheeeer/render-ledger/internal/plans"
)

// Catalog источник тарифов.
type Catalog interface {
	All() []models.Plan
}

// Item тариф с рассчитанными ценами.
type Item struct {
	models.Plan
	AnnualPriceCents int `json:"annual_price_cents"`
}

// Handler обрабатывает GET /plans.
type Handler struct {
	log     *slog.Logger
	catalog Catalog
}

// New создаёт Handler.
func New(log *slog.Logger, c Catalog) *Handler {
	return &Handler{log: log, catalog: c}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	all := h.catalog.All()
	items := make([]Item, 0, len(all))
	for _, p := range all {
		p.MonthlyPriceCents = catalog.PriceCents(p, models.BillingMonthly)
		items = append(items, Item{
			Plan:             p,
			AnnualPriceCents: catalog.PriceCents(p, models.BillingAnnual),
		})
	}
	render.JSON(w, r, response.OKWithData(items))
}
