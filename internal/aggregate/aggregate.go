// Package aggregate derives dashboard views from a ledger snapshot.
//
// Every function here is a pure reduction over the rows it is given: it
// never mutates the slice and returns empty or zero results for empty input.
package aggregate

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spending/internal/core"
)

// PeriodField selects which period key a total groups by.
type PeriodField int

const (
	PeriodDate PeriodField = iota
	PeriodWeek
	PeriodMonth
)

func (f PeriodField) String() string {
	switch f {
	case PeriodDate:
		return core.ColDate
	case PeriodWeek:
		return core.ColWeek
	case PeriodMonth:
		return core.ColMonth
	}
	return "unknown"
}

func (f PeriodField) key(t core.Transaction) string {
	switch f {
	case PeriodDate:
		return t.Date
	case PeriodWeek:
		return t.WeekKey
	case PeriodMonth:
		return t.MonthKey
	}
	return ""
}

// CountForDate counts rows whose date string equals date exactly.
func CountForDate(txs []core.Transaction, date string) int {
	n := 0
	for _, t := range txs {
		if t.Date == date {
			n++
		}
	}
	return n
}

// TotalForPeriod sums amounts of rows whose period key equals value,
// skipping savings and income.
func TotalForPeriod(txs []core.Transaction, field PeriodField, value string) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txs {
		if field.key(t) != value || core.IsTransfer(t.Category) {
			continue
		}
		total = total.Add(t.SpentAmount())
	}
	return total
}

// CategoryMap maps lower-cased item names to the category of their last
// occurrence.
func CategoryMap(txs []core.Transaction) map[string]string {
	out := make(map[string]string)
	for _, t := range txs {
		item := strings.ToLower(strings.TrimSpace(t.Item))
		cat := strings.TrimSpace(t.Category)
		if item == "" || cat == "" {
			continue
		}
		out[item] = cat
	}
	return out
}

// RecommendForToday returns the topN most frequent items bought on the
// given weekday. Ties keep first-seen order.
func RecommendForToday(txs []core.Transaction, weekday time.Weekday, topN int) []string {
	if topN <= 0 {
		return []string{}
	}
	counts := make(map[string]int)
	var order []string
	for _, t := range txs {
		day, ok := t.Day()
		if !ok || day.Weekday() != weekday {
			continue
		}
		item := strings.TrimSpace(t.Item)
		if item == "" {
			continue
		}
		if _, seen := counts[item]; !seen {
			order = append(order, item)
		}
		counts[item]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > topN {
		order = order[:topN]
	}
	if order == nil {
		return []string{}
	}
	return order
}

// LastBought maps each item in category to the date string of its most
// recent purchase.
func LastBought(txs []core.Transaction, category string) map[string]string {
	category = strings.TrimSpace(category)
	latest := make(map[string]time.Time)
	out := make(map[string]string)
	for _, t := range txs {
		if !strings.EqualFold(strings.TrimSpace(t.Category), category) {
			continue
		}
		item := strings.TrimSpace(t.Item)
		day, ok := t.Day()
		if item == "" || !ok {
			continue
		}
		if prev, seen := latest[item]; seen && !day.After(prev) {
			continue
		}
		latest[item] = day
		out[item] = t.Date
	}
	return out
}

// categoryTotal sums one category's amounts over a period.
func categoryTotal(txs []core.Transaction, category string, field PeriodField, value string) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txs {
		if field.key(t) != value || !strings.EqualFold(strings.TrimSpace(t.Category), category) {
			continue
		}
		total = total.Add(t.SpentAmount())
	}
	return total
}

func ratio(spent, ceiling decimal.Decimal) float64 {
	if !ceiling.IsPositive() {
		return 0
	}
	return spent.Div(ceiling).InexactFloat64()
}

// BudgetUsage returns spent/ceiling for every budgeted spending category
// over the period. Ratios are not clamped; a non-positive ceiling yields 0.
func BudgetUsage(txs []core.Transaction, table core.BudgetTable, field PeriodField, value string) map[string]float64 {
	out := make(map[string]float64)
	for _, c := range table.Spending() {
		out[c.Name] = ratio(categoryTotal(txs, c.Name, field, value), c.Ceiling)
	}
	return out
}

// UsageRows is BudgetUsage in table order with the spent amounts kept.
func UsageRows(txs []core.Transaction, table core.BudgetTable, field PeriodField, value string) []core.CategoryUsage {
	spending := table.Spending()
	out := make([]core.CategoryUsage, 0, len(spending))
	for _, c := range spending {
		spent := categoryTotal(txs, c.Name, field, value)
		out = append(out, core.CategoryUsage{
			Name:    c.Name,
			Spent:   spent,
			Ceiling: c.Ceiling,
			Ratio:   ratio(spent, c.Ceiling),
		})
	}
	return out
}

// TotalBudgetUsage compares the month's spend with the sum of all spending
// ceilings.
func TotalBudgetUsage(txs []core.Transaction, table core.BudgetTable, monthKey string) float64 {
	return ratio(TotalForPeriod(txs, PeriodMonth, monthKey), table.TotalCeiling())
}

// DailyTotals returns one bar per day from..to inclusive, counting only
// budgeted spending categories.
func DailyTotals(txs []core.Transaction, table core.BudgetTable, from, to time.Time) []core.DayTotal {
	from = truncateDay(from)
	to = truncateDay(to)
	var out []core.DayTotal
	index := make(map[string]int)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := core.FormatDate(d)
		index[key] = len(out)
		out = append(out, core.DayTotal{Day: d.Format("Mon"), Date: key, Amount: decimal.Zero})
	}
	for _, t := range txs {
		if !table.IsSpending(t.Category) {
			continue
		}
		day, ok := t.Day()
		if !ok {
			continue
		}
		if i, ok := index[core.FormatDate(day)]; ok {
			out[i].Amount = out[i].Amount.Add(t.SpentAmount())
		}
	}
	return out
}

// ItemTotals sums spending per item for a single date string, in first-seen order.
func ItemTotals(txs []core.Transaction, table core.BudgetTable, date string) []core.ItemTotal {
	var out []core.ItemTotal
	index := make(map[string]int)
	for _, t := range txs {
		if t.Date != date || !table.IsSpending(t.Category) {
			continue
		}
		item := strings.TrimSpace(t.Item)
		i, ok := index[item]
		if !ok {
			i = len(out)
			index[item] = i
			out = append(out, core.ItemTotal{Item: item, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(t.SpentAmount())
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
