package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

type (
	// CategoryBudget is the monthly ceiling configured for one category.
	CategoryBudget struct {
		Name    string
		Ceiling decimal.Decimal
	}

	// BudgetTable is the ordered set of known categories and their ceilings.
	BudgetTable []CategoryBudget
)

// DefaultBudgets returns the built-in category table.
func DefaultBudgets() BudgetTable {
	return BudgetTable{
		{Name: "Bet", Ceiling: decimal.NewFromInt(3000)},
		{Name: "Bill", Ceiling: decimal.NewFromInt(35000)},
		{Name: "Data", Ceiling: decimal.NewFromInt(11000)},
		{Name: "Food", Ceiling: decimal.NewFromInt(40000)},
		{Name: "Foodstuff", Ceiling: decimal.NewFromInt(150000)},
		{Name: "Money", Ceiling: decimal.NewFromInt(10000)},
		{Name: "Object", Ceiling: decimal.NewFromInt(50000)},
		{Name: "Snacks", Ceiling: decimal.NewFromInt(60000)},
		{Name: "transfer", Ceiling: decimal.NewFromInt(300000)},
		{Name: "income", Ceiling: decimal.NewFromInt(250000)},
		{Name: "Airtime", Ceiling: decimal.NewFromInt(1000)},
		{Name: "transport", Ceiling: decimal.NewFromInt(70000)},
		{Name: "Savings", Ceiling: decimal.NewFromInt(400000)},
	}
}

// Names returns every category name in table order.
func (b BudgetTable) Names() []string {
	out := make([]string, len(b))
	for i, c := range b {
		out[i] = c.Name
	}
	return out
}

// Lookup finds a category case-insensitively and returns the table spelling.
func (b BudgetTable) Lookup(name string) (CategoryBudget, bool) {
	name = strings.TrimSpace(name)
	for _, c := range b {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return CategoryBudget{}, false
}

// Spending returns the categories that count as expenses, in table order.
func (b BudgetTable) Spending() BudgetTable {
	out := make(BudgetTable, 0, len(b))
	for _, c := range b {
		if !IsTransfer(c.Name) {
			out = append(out, c)
		}
	}
	return out
}

// TotalCeiling sums the ceilings of spending categories.
func (b BudgetTable) TotalCeiling() decimal.Decimal {
	total := decimal.Zero
	for _, c := range b.Spending() {
		total = total.Add(c.Ceiling)
	}
	return total
}

// IsSpending reports whether category is a budgeted, non-transfer category.
func (b BudgetTable) IsSpending(category string) bool {
	c, ok := b.Lookup(category)
	return ok && !IsTransfer(c.Name)
}
