package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spending/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "spending.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	repo.now = func() time.Time { return time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC) }
	return repo
}

func sampleTx(item string, seq int, amount string) core.Transaction {
	tx := core.Transaction{
		Date: "3/5/2024", Seq: seq, Time: "12:00", Item: item, Category: "Food",
		Quantity: 1, WeekKey: "4-Mar", MonthKey: "March 2024",
	}
	if amount != "" {
		tx.Amount = decimal.NewNullDecimal(decimal.RequireFromString(amount))
	}
	return tx
}

func TestAppendAndReadAll(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ref, err := repo.Append(ctx, sampleTx("Rice", 1, "2500.50"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ref != "1" {
		t.Fatalf("unexpected ref %q", ref)
	}
	if _, err := repo.Append(ctx, sampleTx("Gum", 2, "")); err != nil {
		t.Fatalf("append: %v", err)
	}

	txs, err := repo.ReadAll(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(txs))
	}
	if txs[0].Item != "Rice" || txs[0].SpentAmount().String() != "2500.5" || txs[0].WeekKey != "4-Mar" {
		t.Fatalf("unexpected first row: %+v", txs[0])
	}
	if txs[1].Amount.Valid {
		t.Fatalf("missing amount should stay invalid: %+v", txs[1])
	}
}

func TestSyncBookkeeping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for i, item := range []string{"A", "B", "C"} {
		if _, err := repo.Append(ctx, sampleTx(item, i+1, "10")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	pending, err := repo.GetPendingSync(ctx, 10)
	if err != nil || len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d err=%v", len(pending), err)
	}
	if pending[0].SyncStatus != SyncPending || pending[0].CreatedAt.IsZero() {
		t.Fatalf("unexpected record: %+v", pending[0])
	}

	if err := repo.MarkSynced(ctx, pending[0].ID, "Sheet!A2:I2"); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if err := repo.MarkSyncError(ctx, pending[1].ID, errors.New("quota")); err != nil {
		t.Fatalf("mark error: %v", err)
	}

	rec, err := repo.GetTransaction(ctx, pending[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.SyncStatus != SyncSynced || rec.SheetsRef != "Sheet!A2:I2" || rec.Version != 2 {
		t.Fatalf("unexpected synced record: %+v", rec)
	}

	// A late error must not undo a successful sync.
	if err := repo.MarkSyncError(ctx, pending[0].ID, errors.New("late")); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	rec, _ = repo.GetTransaction(ctx, pending[0].ID)
	if rec.SyncStatus != SyncSynced {
		t.Fatalf("synced row was downgraded: %+v", rec)
	}

	rec, _ = repo.GetTransaction(ctx, pending[1].ID)
	if rec.SyncStatus != SyncError || rec.SyncError != "quota" {
		t.Fatalf("unexpected errored record: %+v", rec)
	}

	pending, _ = repo.GetPendingSync(ctx, 10)
	if len(pending) != 2 || pending[0].Transaction.Item != "B" || pending[1].Transaction.Item != "C" {
		t.Fatalf("unexpected pending after sync: %+v", pending)
	}

	pending, _ = repo.GetPendingSync(ctx, 1)
	if len(pending) != 1 {
		t.Fatalf("limit not applied: %d", len(pending))
	}
}

func TestClaimForSync(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if _, err := repo.Append(ctx, sampleTx("Rice", 1, "10")); err != nil {
		t.Fatalf("append: %v", err)
	}

	ok, err := repo.ClaimForSync(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("first claim ok=%v err=%v", ok, err)
	}
	if ok, _ := repo.ClaimForSync(ctx, 1); ok {
		t.Fatal("a live claim must not be taken twice")
	}
	if pending, _ := repo.GetPendingSync(ctx, 10); len(pending) != 0 {
		t.Fatalf("claimed row listed as pending: %+v", pending)
	}

	// The claiming worker went away; the lease runs out.
	start := repo.now()
	repo.now = func() time.Time { return start.Add(SyncLease + time.Second) }
	pending, _ := repo.GetPendingSync(ctx, 10)
	if len(pending) != 1 || pending[0].SyncStatus != SyncClaimed {
		t.Fatalf("expired claim should be pending again: %+v", pending)
	}
	if ok, _ := repo.ClaimForSync(ctx, 1); !ok {
		t.Fatal("expired claim should be reclaimable")
	}

	if err := repo.MarkSynced(ctx, 1, "Sheet!A2:I2"); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if ok, _ := repo.ClaimForSync(ctx, 1); ok {
		t.Fatal("synced row must not be claimed")
	}

	if _, err := repo.Append(ctx, sampleTx("Gum", 2, "5")); err != nil {
		t.Fatalf("append: %v", err)
	}
	_, _ = repo.ClaimForSync(ctx, 2)
	if err := repo.MarkSyncError(ctx, 2, errors.New("quota")); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	if ok, _ := repo.ClaimForSync(ctx, 2); !ok {
		t.Fatal("failed row should be claimable for a retry")
	}
}

func TestNotFound(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if _, err := repo.GetTransaction(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.MarkSynced(ctx, 42, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spending.db")
	if err := RunMigrations(path); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second run: %v", err)
	}
}
