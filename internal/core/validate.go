package core

import (
	"regexp"
	"strconv"
	"strings"
)

// Reason identifies which submission rule was violated.
type Reason string

const (
	ReasonInvalidTime     Reason = "invalid_time"
	ReasonNoCategory      Reason = "no_category"
	ReasonUnknownCategory Reason = "unknown_category"
	ReasonEmptyItem       Reason = "empty_item"
	ReasonInvalidQuantity Reason = "invalid_quantity"
	ReasonInvalidAmount   Reason = "invalid_amount"
)

var reasonMessages = map[Reason]string{
	ReasonInvalidTime:     "Time must be digits and colons, e.g. 14:30 or 14:30:00.",
	ReasonNoCategory:      "Please select a valid category.",
	ReasonUnknownCategory: "Category is not in the budget table.",
	ReasonEmptyItem:       "Item name is required.",
	ReasonInvalidQuantity: "Quantity must be at least 1.",
	ReasonInvalidAmount:   "Amount must be a number greater than or equal to zero.",
}

// ValidationError reports the first submission rule that failed.
type ValidationError struct {
	Reason Reason
}

func (e *ValidationError) Error() string {
	return "validation failed: " + string(e.Reason)
}

// Is makes errors.Is(err, ErrValidationFailed) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Message returns the user-facing text for the reason.
func (e *ValidationError) Message() string {
	if m, ok := reasonMessages[e.Reason]; ok {
		return m
	}
	return string(e.Reason)
}

// H:MM or H:MM:SS, 24-hour clock.
var timePattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)

// ValidTime reports whether s matches the accepted time grammar.
func ValidTime(s string) bool {
	m := timePattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	if h > 23 || min > 59 {
		return false
	}
	if m[3] != "" {
		if sec, _ := strconv.Atoi(m[3]); sec > 59 {
			return false
		}
	}
	return true
}

// ValidateSubmission checks the form values in order and returns the
// normalised submission. Category is rewritten to the table spelling.
func ValidateSubmission(s Submission, table BudgetTable) (Submission, error) {
	s.Time = strings.TrimSpace(s.Time)
	s.Item = strings.TrimSpace(s.Item)
	s.Category = strings.TrimSpace(s.Category)
	s.Amount = strings.TrimSpace(s.Amount)

	if !ValidTime(s.Time) {
		return s, &ValidationError{Reason: ReasonInvalidTime}
	}
	if s.Category == "" || s.Category == CategoryPlaceholder {
		return s, &ValidationError{Reason: ReasonNoCategory}
	}
	c, ok := table.Lookup(s.Category)
	if !ok {
		return s, &ValidationError{Reason: ReasonUnknownCategory}
	}
	s.Category = c.Name
	if s.Item == "" {
		return s, &ValidationError{Reason: ReasonEmptyItem}
	}
	if s.Quantity < 1 {
		return s, &ValidationError{Reason: ReasonInvalidQuantity}
	}
	if _, err := ParseAmount(s.Amount); err != nil {
		return s, &ValidationError{Reason: ReasonInvalidAmount}
	}
	return s, nil
}
