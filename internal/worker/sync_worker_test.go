package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"spending/internal/amqp"
	"spending/internal/core"
	"spending/internal/sheets/memory"
	"spending/internal/storage"
)

type flakyWriter struct {
	mu    sync.Mutex
	fail  bool
	calls int
	rows  []core.Transaction
}

func (f *flakyWriter) Append(_ context.Context, t core.Transaction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return "", core.ErrStoreUnavailable
	}
	f.rows = append(f.rows, t)
	return "Sheet!A1:I1", nil
}

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "w.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seed(t *testing.T, repo *storage.SQLiteRepository, items ...string) {
	t.Helper()
	for i, item := range items {
		if _, err := repo.Append(context.Background(), core.Transaction{Date: "3/5/2024", Seq: i + 1, Item: item, Category: "Food", Quantity: 1}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestHandleSyncMessage(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, "Rice")
	sheet := memory.New()
	w := NewSyncWorker(repo, sheet, 10, nil)
	ctx := context.Background()

	msg := amqp.NewTransactionSyncMessage(1, 1)
	if err := w.HandleSyncMessage(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	// Redelivery must not append twice.
	if err := w.HandleSyncMessage(ctx, msg); err != nil {
		t.Fatalf("handle redelivery: %v", err)
	}

	rows, _ := sheet.ReadAll(ctx)
	if len(rows) != 1 || rows[0].Item != "Rice" {
		t.Fatalf("unexpected sheet rows: %+v", rows)
	}
	rec, _ := repo.GetTransaction(ctx, 1)
	if rec.SyncStatus != storage.SyncSynced || rec.SheetsRef != "mem:1" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if err := w.HandleSyncMessage(ctx, amqp.NewTransactionSyncMessage(99, 1)); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProcessPendingMarksErrorsAndRetries(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, "A", "B")
	writer := &flakyWriter{fail: true}
	w := NewSyncWorker(repo, writer, 10, nil)
	ctx := context.Background()

	synced, failed, err := w.ProcessPending(ctx)
	if err != nil || synced != 0 || failed != 2 {
		t.Fatalf("unexpected result synced=%d failed=%d err=%v", synced, failed, err)
	}
	rec, _ := repo.GetTransaction(ctx, 1)
	if rec.SyncStatus != storage.SyncError {
		t.Fatalf("expected error status, got %+v", rec)
	}

	writer.fail = false
	synced, failed, err = w.ProcessPending(ctx)
	if err != nil || synced != 2 || failed != 0 {
		t.Fatalf("unexpected retry result synced=%d failed=%d err=%v", synced, failed, err)
	}
	if len(writer.rows) != 2 || writer.rows[0].Item != "A" {
		t.Fatalf("rows not appended in order: %+v", writer.rows)
	}

	synced, _, _ = w.ProcessPending(ctx)
	if synced != 0 {
		t.Fatalf("nothing should be pending, synced %d", synced)
	}
}

func TestPollerLifecycle(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, "A")
	writer := &flakyWriter{}
	p := NewPoller(NewSyncWorker(repo, writer, 10, nil), time.Hour)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Fatal("second start should fail")
	}
	if !p.IsRunning() {
		t.Fatal("poller should be running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		writer.mu.Lock()
		n := len(writer.rows)
		writer.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("initial poll did not sync the pending row")
		}
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if p.IsRunning() {
		t.Fatal("poller should be stopped")
	}
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("stopping twice should be a no-op: %v", err)
	}
}

// gatedWriter holds every append until release is closed.
type gatedWriter struct {
	flakyWriter
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedWriter) Append(ctx context.Context, t core.Transaction) (string, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.flakyWriter.Append(ctx, t)
}

func TestConsumerAndPollerAppendRowOnce(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, "Rice")
	writer := &gatedWriter{entered: make(chan struct{}), release: make(chan struct{})}
	w := NewSyncWorker(repo, writer, 10, nil)
	ctx := context.Background()

	// The poller listed the row before the consumer claimed it.
	pending, err := repo.GetPendingSync(ctx, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending=%d err=%v", len(pending), err)
	}

	handled := make(chan error, 1)
	go func() { handled <- w.HandleSyncMessage(ctx, amqp.NewTransactionSyncMessage(1, 1)) }()
	<-writer.entered

	appended, err := w.sync(ctx, pending[0])
	if err != nil || appended {
		t.Fatalf("second sync appended=%v err=%v", appended, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := w.ProcessPending(ctx); err != nil {
				t.Errorf("process pending: %v", err)
			}
		}()
	}
	wg.Wait()

	close(writer.release)
	if err := <-handled; err != nil {
		t.Fatalf("handle: %v", err)
	}

	writer.mu.Lock()
	calls := writer.calls
	writer.mu.Unlock()
	if calls != 1 {
		t.Fatalf("sheet appends for one row = %d, want 1", calls)
	}
	rec, _ := repo.GetTransaction(ctx, 1)
	if rec.SyncStatus != storage.SyncSynced {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
