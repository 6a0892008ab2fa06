package http

import (
	"html/template"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"spending/internal/core"
)

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"naira":    core.FormatNaira,
		"pct":      clampPercent,
		"pctLabel": percentLabel,
		"over":     func(ratio float64) bool { return ratio > 1 },
		"options": func(selected string, categories []string) categoryOptionsView {
			return categoryOptionsView{Predicted: selected, Categories: categories}
		},
		"selected": func(a, b string) bool { return strings.EqualFold(a, b) },
		"lastBought": func(category string, categories []string, rows []core.LastPurchase) lastBoughtView {
			return lastBoughtView{Category: category, Categories: categories, Rows: rows}
		},
	}
}

// clampPercent converts a usage ratio into a progress width between 0 and 100.
func clampPercent(ratio float64) int {
	if ratio <= 0 || math.IsNaN(ratio) {
		return 0
	}
	p := int(math.Round(ratio * 100))
	if p > 100 {
		return 100
	}
	return p
}

// percentLabel renders the unclamped ratio, so overspending still shows.
func percentLabel(ratio float64) string {
	if math.IsNaN(ratio) || ratio < 0 {
		ratio = 0
	}
	return decimal.NewFromFloat(ratio * 100).Round(0).String() + "%"
}

type (
	pageData struct {
		Categories []string
		Form       formValues
		Warning    string
		StoreError string
		Dashboard  *dashboardView
	}

	dashboardView struct {
		core.Dashboard
		Bars []barView
		Mix  []mixView
	}

	barView struct {
		core.DayTotal
		Height int
	}

	mixView struct {
		core.ItemTotal
		Share int
	}

	lastBoughtView struct {
		Category   string
		Categories []string
		Rows       []core.LastPurchase
	}

	categoryOptionsView struct {
		Predicted  string
		Categories []string
	}
)

// newDashboardView scales week bars to the busiest day and mix slices to today's total.
func newDashboardView(d core.Dashboard) *dashboardView {
	v := &dashboardView{Dashboard: d}

	max := decimal.Zero
	for _, b := range d.WeekBars {
		if b.Amount.GreaterThan(max) {
			max = b.Amount
		}
	}
	for _, b := range d.WeekBars {
		v.Bars = append(v.Bars, barView{DayTotal: b, Height: share(b.Amount, max)})
	}

	total := decimal.Zero
	for _, it := range d.TodayMix {
		total = total.Add(it.Amount)
	}
	for _, it := range d.TodayMix {
		v.Mix = append(v.Mix, mixView{ItemTotal: it, Share: share(it.Amount, total)})
	}
	return v
}

// share returns part/whole as a rounded percentage; small non-zero parts stay visible.
func share(part, whole decimal.Decimal) int {
	if !whole.IsPositive() || !part.IsPositive() {
		return 0
	}
	p := int(part.Mul(decimal.NewFromInt(100)).Div(whole).Round(0).IntPart())
	if p < 2 {
		p = 2
	}
	if p > 100 {
		p = 100
	}
	return p
}
