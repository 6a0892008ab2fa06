package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spending/internal/aggregate"
	"spending/internal/core"
	"spending/internal/sheets"
)

// Publisher announces rows that still have to reach the spreadsheet.
type Publisher interface {
	PublishTransactionSync(ctx context.Context, id, version int64) error
}

// Options tune a LedgerService. Zero values pick defaults.
type Options struct {
	TopN      int
	Now       func() time.Time
	Publisher Publisher
	Logger    *slog.Logger
}

// LedgerService records submissions and assembles the dashboard.
type LedgerService struct {
	agg       *aggregate.Aggregator
	writer    sheets.LedgerWriter
	table     core.BudgetTable
	publisher Publisher
	now       func() time.Time
	topN      int
	logger    *slog.Logger

	// Sequence numbers come from a read followed by a write.
	submitMu sync.Mutex
}

func NewLedgerService(agg *aggregate.Aggregator, writer sheets.LedgerWriter, table core.BudgetTable, opts Options) *LedgerService {
	if opts.TopN <= 0 {
		opts.TopN = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &LedgerService{
		agg:       agg,
		writer:    writer,
		table:     table,
		publisher: opts.Publisher,
		now:       opts.Now,
		topN:      opts.TopN,
		logger:    opts.Logger,
	}
}

// Categories returns the budget table names in order.
func (s *LedgerService) Categories() []string {
	return s.table.Names()
}

// Submit validates a form submission and appends it as the next row of its day.
// Week and month keys come from the clock at write time.
func (s *LedgerService) Submit(ctx context.Context, sub core.Submission) (core.Transaction, error) {
	sub, err := core.ValidateSubmission(sub, s.table)
	if err != nil {
		s.logger.InfoContext(ctx, "Submission rejected", "error", err, "item", sub.Item)
		return core.Transaction{}, err
	}
	amount, err := core.ParseAmount(sub.Amount)
	if err != nil {
		return core.Transaction{}, &core.ValidationError{Reason: core.ReasonInvalidAmount}
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	snapshot, err := s.agg.FetchSnapshot(ctx)
	if err != nil {
		return core.Transaction{}, err
	}

	date := core.FormatDate(sub.Date)
	now := s.now()
	tx := core.Transaction{
		Date:     date,
		Seq:      aggregate.CountForDate(snapshot, date) + 1,
		Time:     sub.Time,
		Item:     sub.Item,
		Category: sub.Category,
		Quantity: sub.Quantity,
		Amount:   decimal.NewNullDecimal(amount),
		WeekKey:  core.WeekKey(now),
		MonthKey: core.MonthKey(now),
	}

	ref, err := s.writer.Append(ctx, tx)
	if err != nil {
		if !errors.Is(err, core.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
		}
		return core.Transaction{}, err
	}
	s.agg.Invalidate()

	s.logger.InfoContext(ctx, "Transaction recorded",
		"ref", ref,
		"date", tx.Date,
		"seq", tx.Seq,
		"item", tx.Item,
		"category", tx.Category,
		"amount", amount.String())

	s.publish(ctx, ref)
	return tx, nil
}

// publish announces a locally stored row; failures never fail the submission.
func (s *LedgerService) publish(ctx context.Context, ref string) {
	if s.publisher == nil {
		return
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		s.logger.WarnContext(ctx, "Row reference is not a mirror id, skipping sync message", "ref", ref)
		return
	}
	if err := s.publisher.PublishTransactionSync(ctx, id, 1); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish sync message", "id", id, "error", err)
	}
}

// Dashboard assembles every dashboard value from one snapshot.
// lastBoughtCategory selects the last-bought table; empty picks the first category.
func (s *LedgerService) Dashboard(ctx context.Context, lastBoughtCategory string) (core.Dashboard, error) {
	snapshot, err := s.agg.FetchSnapshot(ctx)
	if err != nil {
		return core.Dashboard{}, err
	}

	now := s.now()
	today := core.FormatDate(now)
	monthKey := core.MonthKey(now)
	monday := core.WeekStart(now)

	category := s.resolveCategory(lastBoughtCategory)
	return core.Dashboard{
		Today:              aggregate.TotalForPeriod(snapshot, aggregate.PeriodDate, today),
		Week:               aggregate.TotalForPeriod(snapshot, aggregate.PeriodWeek, core.WeekKey(now)),
		Month:              aggregate.TotalForPeriod(snapshot, aggregate.PeriodMonth, monthKey),
		TotalUsage:         aggregate.TotalBudgetUsage(snapshot, s.table, monthKey),
		TotalLimit:         s.table.TotalCeiling(),
		Usage:              aggregate.UsageRows(snapshot, s.table, aggregate.PeriodMonth, monthKey),
		Recommend:          aggregate.RecommendForToday(snapshot, now.Weekday(), s.topN),
		Weekday:            now.Weekday().String(),
		LastBoughtCategory: category,
		LastBought:         lastPurchases(snapshot, category),
		WeekBars:           aggregate.DailyTotals(snapshot, s.table, monday, monday.AddDate(0, 0, 6)),
		TodayMix:           aggregate.ItemTotals(snapshot, s.table, today),
		Categories:         s.table.Names(),
	}, nil
}

// LastBought lists the items of a category by most recent purchase.
func (s *LedgerService) LastBought(ctx context.Context, category string) (string, []core.LastPurchase, error) {
	snapshot, err := s.agg.FetchSnapshot(ctx)
	if err != nil {
		return "", nil, err
	}
	category = s.resolveCategory(category)
	return category, lastPurchases(snapshot, category), nil
}

// PredictCategory returns the category last used for item, in table spelling,
// or "" when the item is new or its category is no longer budgeted.
func (s *LedgerService) PredictCategory(ctx context.Context, item string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(item))
	if key == "" {
		return "", nil
	}
	snapshot, err := s.agg.FetchSnapshot(ctx)
	if err != nil {
		return "", err
	}
	c, ok := s.table.Lookup(aggregate.CategoryMap(snapshot)[key])
	if !ok {
		return "", nil
	}
	return c.Name, nil
}

func (s *LedgerService) resolveCategory(name string) string {
	if c, ok := s.table.Lookup(name); ok {
		return c.Name
	}
	if len(s.table) == 0 {
		return ""
	}
	return s.table[0].Name
}

// lastPurchases orders LastBought by date, newest first, then by item.
func lastPurchases(snapshot []core.Transaction, category string) []core.LastPurchase {
	if category == "" {
		return nil
	}
	m := aggregate.LastBought(snapshot, category)
	out := make([]core.LastPurchase, 0, len(m))
	for item, date := range m {
		out = append(out, core.LastPurchase{Item: item, Date: date})
	}
	sort.Slice(out, func(i, j int) bool {
		di, _ := core.ParseDate(out[i].Date)
		dj, _ := core.ParseDate(out[j].Date)
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return out[i].Item < out[j].Item
	})
	return out
}
