// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing ledger amounts from form input
// and sheet cells, and for rendering them as naira strings.
package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount parses a non-negative decimal amount. Thousands separators
// and a leading naira sign are accepted.
//
// Examples:
//
//	ParseAmount("1200")      -> 1200, nil
//	ParseAmount("₦1,250.50") -> 1250.5, nil
//	ParseAmount("-3")        -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "₦")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseCell converts a sheet cell into an amount. Cells that are not
// numeric come back with Valid set to false.
func ParseCell(v any) decimal.NullDecimal {
	switch n := v.(type) {
	case nil:
		return decimal.NullDecimal{}
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(n))
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(n)))
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(n))
	case decimal.Decimal:
		return decimal.NewNullDecimal(n)
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(fmt.Sprint(v)), ",", ""))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// FormatNaira renders an amount with two decimals and thousands separators.
func FormatNaira(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "₦" + b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}
