package http

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"spending/internal/core"
)

// Form field names posted by the entry form.
const (
	fieldDate     = "date"
	fieldTime     = "time"
	fieldItem     = "item"
	fieldCategory = "category"
	fieldQuantity = "quantity"
	fieldAmount   = "amount"
)

// errInvalidDate is returned when the date field is present but unreadable.
var errInvalidDate = errors.New("invalid date")

// formValues echoes the raw submission back into the form after a rejection.
type formValues struct {
	Date     string
	Time     string
	Item     string
	Category string
	Quantity string
	Amount   string
}

func readFormValues(form url.Values) formValues {
	return formValues{
		Date:     sanitizeInput(form.Get(fieldDate)),
		Time:     sanitizeInput(form.Get(fieldTime)),
		Item:     sanitizeInput(form.Get(fieldItem)),
		Category: sanitizeInput(form.Get(fieldCategory)),
		Quantity: sanitizeInput(form.Get(fieldQuantity)),
		Amount:   sanitizeInput(form.Get(fieldAmount)),
	}
}

// ParseSubmission turns form values into a Submission. An empty date means
// today and an empty quantity means 1; everything else is left for
// core.ValidateSubmission to judge.
func ParseSubmission(form url.Values, now time.Time) (core.Submission, error) {
	v := readFormValues(form)

	date, err := parseFormDate(v.Date, now)
	if err != nil {
		return core.Submission{}, err
	}

	quantity := 1
	if v.Quantity != "" {
		// Unparseable quantities become 0 and fail validation.
		quantity, _ = strconv.Atoi(v.Quantity)
	}

	return core.Submission{
		Date:     date,
		Time:     v.Time,
		Item:     v.Item,
		Category: v.Category,
		Quantity: quantity,
		Amount:   v.Amount,
	}, nil
}

// parseFormDate accepts the HTML date input format and the ledger's M/D/YYYY.
func parseFormDate(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}
	if t, ok := core.ParseDate(s); ok {
		return t, nil
	}
	return time.Time{}, errInvalidDate
}

// sanitizeInput removes control characters (except tab and newlines) and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// RequireMethod returns a 405 response unless the request uses one of methods.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// ParseFormOrFail parses the request form and returns an error response on failure.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Malformed request.")
	}
	return nil
}
