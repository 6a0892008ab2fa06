package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout  = "1/2/2006"
	monthLayout = "January 2006"
)

// FormatDate renders a date as M/D/YYYY without zero padding.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate accepts M/D/YYYY, with or without zero padding.
func ParseDate(s string) (time.Time, bool) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// WeekStart returns midnight of the Monday that starts t's week.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WeekKey renders the D-Mon label of the Monday starting t's week.
func WeekKey(t time.Time) string {
	monday := WeekStart(t)
	return fmt.Sprintf("%d-%s", monday.Day(), monday.Format("Jan"))
}

// MonthKey renders the "Month YYYY" label of t.
func MonthKey(t time.Time) string {
	return t.Format(monthLayout)
}
