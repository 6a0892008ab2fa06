package google

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"spending/internal/core"
)

// parseStats reports what parseLedger had to ignore.
type parseStats struct {
	Rows       int
	BadAmounts int
	BadDates   int
	Extra      []string
}

// parseLedger converts a values matrix (as returned by Sheets API) into
// transactions. The first row is the header; columns are located by name
// so the sheet may reorder them or carry extra ones.
func parseLedger(values [][]any) ([]core.Transaction, parseStats, error) {
	var stats parseStats
	if len(values) == 0 {
		return []core.Transaction{}, stats, nil
	}
	headers := toStrings(values[0])
	idx := make(map[string]int, len(core.Columns))
	var missing []string
	for _, col := range core.Columns {
		i := indexOf(headers, col)
		if i == -1 {
			missing = append(missing, col)
			continue
		}
		idx[col] = i
	}
	if len(missing) > 0 {
		return nil, stats, fmt.Errorf("%w: unexpected ledger header: missing %s; got headers=%v",
			core.ErrStoreUnavailable, strings.Join(missing, ","), headers)
	}
	for _, h := range headers {
		if h != "" && indexOf(core.Columns, h) == -1 {
			stats.Extra = append(stats.Extra, h)
		}
	}

	out := make([]core.Transaction, 0, len(values)-1)
	for _, raw := range values[1:] {
		row := toStrings(raw)
		if blank(row) {
			continue
		}
		t := core.Transaction{
			Date:     safeGet(row, idx[core.ColDate]),
			Seq:      intCell(cellAt(raw, idx[core.ColSeq])),
			Time:     safeGet(row, idx[core.ColTime]),
			Item:     safeGet(row, idx[core.ColItem]),
			Category: safeGet(row, idx[core.ColCategory]),
			Quantity: intCell(cellAt(raw, idx[core.ColQuantity])),
			Amount:   core.ParseCell(cellAt(raw, idx[core.ColAmount])),
			WeekKey:  safeGet(row, idx[core.ColWeek]),
			MonthKey: safeGet(row, idx[core.ColMonth]),
		}
		if !t.Amount.Valid {
			stats.BadAmounts++
		}
		if _, ok := t.Day(); !ok {
			stats.BadDates++
		}
		out = append(out, t)
	}
	stats.Rows = len(out)
	return out, stats, nil
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		if v == nil {
			continue
		}
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

func cellAt(row []any, idx int) any {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return row[idx]
}

func blank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

// intCell reads a whole number cell; anything else is zero.
func intCell(v any) int {
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) {
			return int(x)
		}
	case int:
		return x
	case int64:
		return int(x)
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
			return int(f)
		}
	}
	return 0
}
