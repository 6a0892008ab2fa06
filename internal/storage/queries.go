package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx runs the queries inside tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Row mirrors the transactions table.
type Row struct {
	ID         int64
	Date       string
	Seq        int64
	Time       string
	Item       string
	Category   string
	Quantity   int64
	Amount     sql.NullString
	WeekKey    string
	MonthKey   string
	Version    int64
	SyncStatus string
	SyncError  sql.NullString
	SheetsRef  sql.NullString
	CreatedAt  string
	SyncedAt   sql.NullString
}

const rowColumns = `id, date, seq, time, item, category, quantity, amount, week_key, month_key,
	version, sync_status, sync_error, sheets_ref, created_at, synced_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(s rowScanner) (Row, error) {
	var r Row
	err := s.Scan(
		&r.ID, &r.Date, &r.Seq, &r.Time, &r.Item, &r.Category, &r.Quantity, &r.Amount,
		&r.WeekKey, &r.MonthKey, &r.Version, &r.SyncStatus, &r.SyncError, &r.SheetsRef,
		&r.CreatedAt, &r.SyncedAt,
	)
	return r, err
}

type CreateTransactionParams struct {
	Date      string
	Seq       int64
	Time      string
	Item      string
	Category  string
	Quantity  int64
	Amount    sql.NullString
	WeekKey   string
	MonthKey  string
	CreatedAt string
}

const createTransaction = `INSERT INTO transactions
	(date, seq, time, item, category, quantity, amount, week_key, month_key, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + rowColumns

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Row, error) {
	return scanRow(q.db.QueryRowContext(ctx, createTransaction,
		arg.Date, arg.Seq, arg.Time, arg.Item, arg.Category, arg.Quantity,
		arg.Amount, arg.WeekKey, arg.MonthKey, arg.CreatedAt,
	))
}

const getTransaction = `SELECT ` + rowColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id int64) (Row, error) {
	return scanRow(q.db.QueryRowContext(ctx, getTransaction, id))
}

const listTransactions = `SELECT ` + rowColumns + ` FROM transactions ORDER BY id`

func (q *Queries) ListTransactions(ctx context.Context) ([]Row, error) {
	return q.list(ctx, listTransactions)
}

const getPendingSync = `SELECT ` + rowColumns + ` FROM transactions
WHERE sync_status IN ('pending', 'error')
   OR (sync_status = 'syncing' AND claimed_at < ?)
ORDER BY id
LIMIT ?`

func (q *Queries) GetPendingSync(ctx context.Context, staleBefore string, limit int64) ([]Row, error) {
	return q.list(ctx, getPendingSync, staleBefore, limit)
}

const claimForSync = `UPDATE transactions
SET sync_status = 'syncing', claimed_at = ?
WHERE id = ?
  AND (sync_status IN ('pending', 'error')
       OR (sync_status = 'syncing' AND claimed_at < ?))`

func (q *Queries) ClaimForSync(ctx context.Context, id int64, claimedAt, staleBefore string) (int64, error) {
	return q.exec(ctx, claimForSync, claimedAt, id, staleBefore)
}

const markSynced = `UPDATE transactions
SET sync_status = 'synced', sync_error = NULL, sheets_ref = ?, synced_at = ?, claimed_at = NULL, version = version + 1
WHERE id = ?`

func (q *Queries) MarkSynced(ctx context.Context, id int64, sheetsRef, syncedAt string) (int64, error) {
	return q.exec(ctx, markSynced, sheetsRef, syncedAt, id)
}

const markSyncError = `UPDATE transactions
SET sync_status = 'error', sync_error = ?, claimed_at = NULL, version = version + 1
WHERE id = ? AND sync_status != 'synced'`

func (q *Queries) MarkSyncError(ctx context.Context, id int64, msg string) (int64, error) {
	return q.exec(ctx, markSyncError, msg, id)
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) list(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
