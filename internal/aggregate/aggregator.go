package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spending/internal/cache"
	"spending/internal/core"
	"spending/internal/sheets"
)

// Aggregator owns the snapshot cache in front of the ledger reader.
type Aggregator struct {
	reader   sheets.LedgerReader
	snapshot *cache.Value[[]core.Transaction]
	logger   *slog.Logger
}

// New creates an Aggregator whose snapshots stay fresh for ttl.
func New(reader sheets.LedgerReader, ttl time.Duration, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		reader:   reader,
		snapshot: cache.NewValue[[]core.Transaction](ttl),
		logger:   logger,
	}
}

// WithClock replaces the cache clock, for tests.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.snapshot.WithClock(now)
	return a
}

// WithLoadTimeout bounds each store read shared by concurrent requests.
func (a *Aggregator) WithLoadTimeout(d time.Duration) *Aggregator {
	a.snapshot.WithLoadTimeout(d)
	return a
}

// FetchSnapshot returns every ledger row in store order. Failures to reach
// the store are reported as core.ErrStoreUnavailable.
func (a *Aggregator) FetchSnapshot(ctx context.Context) ([]core.Transaction, error) {
	txs, err := a.snapshot.Get(ctx, a.load)
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (a *Aggregator) load(ctx context.Context) ([]core.Transaction, error) {
	start := time.Now()
	txs, err := a.reader.ReadAll(ctx)
	if err != nil {
		if !errors.Is(err, core.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
		}
		a.logger.ErrorContext(ctx, "Snapshot fetch failed", "error", err)
		return nil, err
	}
	a.logger.DebugContext(ctx, "Snapshot fetched",
		"rows", len(txs),
		"duration_ms", time.Since(start).Milliseconds())
	return txs, nil
}

// Invalidate forces the next FetchSnapshot to read the store.
func (a *Aggregator) Invalidate() {
	a.snapshot.Invalidate()
}

// CacheStats reports snapshot cache hits and misses.
func (a *Aggregator) CacheStats() (hits, misses uint64) {
	return a.snapshot.Stats()
}
