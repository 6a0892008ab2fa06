package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger column headers, in the order rows are appended.
const (
	ColDate     = "DATE"
	ColSeq      = "No"
	ColTime     = "TIME"
	ColItem     = "ITEM"
	ColCategory = "ITEM CATEGORY"
	ColQuantity = "No of ITEM"
	ColAmount   = "Amount Spent"
	ColWeek     = "WEEK"
	ColMonth    = "MONTH"
)

// Columns lists the ledger headers in append order.
var Columns = []string{ColDate, ColSeq, ColTime, ColItem, ColCategory, ColQuantity, ColAmount, ColWeek, ColMonth}

// CategoryPlaceholder is the form value meaning no category was picked.
const CategoryPlaceholder = "Select Category"

type (
	// Transaction is one row of the ledger sheet.
	Transaction struct {
		Date     string // M/D/YYYY, compared as a string
		Seq      int    // 1-based, resets daily
		Time     string
		Item     string
		Category string
		Quantity int
		Amount   decimal.NullDecimal // Valid is false when the cell was not numeric
		WeekKey  string              // D-Mon of the week's Monday
		MonthKey string              // "January 2006"
	}

	// Submission carries the raw values posted by the entry form.
	Submission struct {
		Date     time.Time
		Time     string
		Item     string
		Category string
		Quantity int
		Amount   string
	}
)

var (
	// ErrStoreUnavailable marks connectivity, auth and header failures of the ledger store.
	ErrStoreUnavailable = errors.New("ledger store unavailable")
	// ErrValidationFailed is matched by every *ValidationError.
	ErrValidationFailed = errors.New("validation failed")
)

// SpentAmount returns the amount, or zero when the cell did not parse.
func (t Transaction) SpentAmount() decimal.Decimal {
	if !t.Amount.Valid {
		return decimal.Zero
	}
	return t.Amount.Decimal
}

// Day parses the stored date.
func (t Transaction) Day() (time.Time, bool) {
	return ParseDate(t.Date)
}

// Row renders the transaction in column order for an append call.
func (t Transaction) Row() []any {
	return []any{
		t.Date,
		t.Seq,
		t.Time,
		t.Item,
		t.Category,
		t.Quantity,
		t.SpentAmount().InexactFloat64(),
		t.WeekKey,
		t.MonthKey,
	}
}

// IsTransfer reports whether a category is a transfer (savings or income)
// rather than an expense.
func IsTransfer(category string) bool {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "savings", "income":
		return true
	}
	return false
}
