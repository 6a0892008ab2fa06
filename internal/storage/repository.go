package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"spending/internal/core"
	"spending/internal/sheets"

	_ "modernc.org/sqlite"
)

// Sync states of a mirrored row.
const (
	SyncPending = "pending"
	SyncClaimed = "syncing"
	SyncSynced  = "synced"
	SyncError   = "error"
)

// SyncLease is how long a claim keeps other workers off a row. A worker
// that dies mid-sync releases its rows once the lease runs out.
const SyncLease = 5 * time.Minute

// Claim times are compared as text, so they use a fixed-width UTC layout.
const claimLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when a transaction id does not exist.
var ErrNotFound = errors.New("transaction not found")

// Record is a mirrored transaction with its sync bookkeeping.
type Record struct {
	ID          int64
	Version     int64
	Transaction core.Transaction
	SyncStatus  string
	SyncError   string
	SheetsRef   string
	CreatedAt   time.Time
}

// SQLiteRepository is the local ledger mirror. Rows land here first and are
// pushed to the spreadsheet by the sync worker.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

// Ensure interface conformance
var _ sheets.Ledger = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between the web server goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db), now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

// Append implements sheets.LedgerWriter. The returned reference is the row id.
func (r *SQLiteRepository) Append(ctx context.Context, t core.Transaction) (string, error) {
	var amount sql.NullString
	if t.Amount.Valid {
		amount = sql.NullString{String: t.Amount.Decimal.String(), Valid: true}
	}
	row, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		Date:      t.Date,
		Seq:       int64(t.Seq),
		Time:      t.Time,
		Item:      t.Item,
		Category:  t.Category,
		Quantity:  int64(t.Quantity),
		Amount:    amount,
		WeekKey:   t.WeekKey,
		MonthKey:  t.MonthKey,
		CreatedAt: r.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("%w: create transaction: %w", core.ErrStoreUnavailable, err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", row.ID,
		"date", row.Date,
		"seq", row.Seq,
		"item", row.Item)

	return strconv.FormatInt(row.ID, 10), nil
}

// ReadAll implements sheets.LedgerReader, returning rows in insertion order.
func (r *SQLiteRepository) ReadAll(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions: %w", core.ErrStoreUnavailable, err)
	}
	out := make([]core.Transaction, len(rows))
	for i, row := range rows {
		out[i] = toTransaction(row)
	}
	return out, nil
}

// GetTransaction retrieves a single mirrored row by id.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (Record, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return toRecord(row), nil
}

// GetPendingSync returns up to limit rows not yet written to the spreadsheet,
// oldest first. Rows that previously failed or whose claim expired are retried.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	staleBefore := r.now().Add(-SyncLease).UTC().Format(claimLayout)
	rows, err := r.queries.GetPendingSync(ctx, staleBefore, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync: %w", err)
	}
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = toRecord(row)
	}
	return out, nil
}

// ClaimForSync takes a row for one sync attempt. It reports false when the
// row is already synced or another worker holds a live claim on it.
func (r *SQLiteRepository) ClaimForSync(ctx context.Context, id int64) (bool, error) {
	now := r.now().UTC()
	n, err := r.queries.ClaimForSync(ctx, id,
		now.Format(claimLayout),
		now.Add(-SyncLease).Format(claimLayout))
	if err != nil {
		return false, fmt.Errorf("claim transaction %d: %w", id, err)
	}
	return n == 1, nil
}

// MarkSynced records the spreadsheet reference for a row.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64, sheetsRef string) error {
	n, err := r.queries.MarkSynced(ctx, id, sheetsRef, r.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id, "sheets_ref", sheetsRef)
	return nil
}

// MarkSyncError flags a row whose sync failed. Already synced rows are left alone.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := r.queries.MarkSyncError(ctx, id, msg); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id, "error", msg)
	return nil
}

func toTransaction(row Row) core.Transaction {
	t := core.Transaction{
		Date:     row.Date,
		Seq:      int(row.Seq),
		Time:     row.Time,
		Item:     row.Item,
		Category: row.Category,
		Quantity: int(row.Quantity),
		WeekKey:  row.WeekKey,
		MonthKey: row.MonthKey,
	}
	if row.Amount.Valid {
		if d, err := decimal.NewFromString(row.Amount.String); err == nil {
			t.Amount = decimal.NewNullDecimal(d)
		}
	}
	return t
}

func toRecord(row Row) Record {
	created, _ := time.Parse(time.RFC3339Nano, row.CreatedAt)
	return Record{
		ID:          row.ID,
		Version:     row.Version,
		Transaction: toTransaction(row),
		SyncStatus:  row.SyncStatus,
		SyncError:   row.SyncError.String,
		SheetsRef:   row.SheetsRef.String,
		CreatedAt:   created,
	}
}
