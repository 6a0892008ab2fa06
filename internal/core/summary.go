package core

import "github.com/shopspring/decimal"

// CategoryUsage is one budget progress row.
type CategoryUsage struct {
	Name    string
	Spent   decimal.Decimal
	Ceiling decimal.Decimal
	Ratio   float64 // unclamped
}

// DayTotal is one bar of the weekly chart.
type DayTotal struct {
	Day    string // Mon..Sun
	Date   string
	Amount decimal.Decimal
}

// ItemTotal is one slice of today's breakdown.
type ItemTotal struct {
	Item   string
	Amount decimal.Decimal
}

// LastPurchase pairs an item with the date it was last bought.
type LastPurchase struct {
	Item string
	Date string
}

// Dashboard holds every value the presentation layer renders.
type Dashboard struct {
	Today      decimal.Decimal
	Week       decimal.Decimal
	Month      decimal.Decimal
	TotalUsage float64
	TotalLimit decimal.Decimal
	Usage      []CategoryUsage
	Recommend  []string
	Weekday    string

	LastBoughtCategory string
	LastBought         []LastPurchase

	WeekBars []DayTotal
	TodayMix []ItemTotal

	Categories []string
}
