package worker

import (
	"context"
	"fmt"
	"log/slog"

	"spending/internal/amqp"
	"spending/internal/sheets"
	"spending/internal/storage"
)

// Store is the slice of the SQLite mirror the worker needs.
type Store interface {
	GetTransaction(ctx context.Context, id int64) (storage.Record, error)
	GetPendingSync(ctx context.Context, limit int) ([]storage.Record, error)
	ClaimForSync(ctx context.Context, id int64) (bool, error)
	MarkSynced(ctx context.Context, id int64, sheetsRef string) error
	MarkSyncError(ctx context.Context, id int64, cause error) error
}

// SyncWorker copies mirrored ledger rows from SQLite to the spreadsheet.
type SyncWorker struct {
	store     Store
	sheets    sheets.LedgerWriter
	batchSize int
	logger    *slog.Logger
}

func NewSyncWorker(store Store, sheets sheets.LedgerWriter, batchSize int, logger *slog.Logger) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncWorker{
		store:     store,
		sheets:    sheets,
		batchSize: batchSize,
		logger:    logger.With("component", "sync_worker"),
	}
}

// HandleSyncMessage processes a single sync message from AMQP. Rows that are
// already synced are acknowledged without a second append.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	w.logger.InfoContext(ctx, "Processing sync message", "id", msg.ID, "version", msg.Version)

	rec, err := w.store.GetTransaction(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}
	if rec.SyncStatus == storage.SyncSynced {
		w.logger.DebugContext(ctx, "Transaction already synced, skipping",
			"id", rec.ID,
			"sheets_ref", rec.SheetsRef)
		return nil
	}
	_, err = w.sync(ctx, rec)
	return err
}

// ProcessPending syncs up to one batch of rows not yet in the spreadsheet.
// It covers messages lost while the broker or worker was down.
func (w *SyncWorker) ProcessPending(ctx context.Context) (synced, failed int, err error) {
	pending, err := w.store.GetPendingSync(ctx, w.batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending transactions", "count", len(pending))
	for _, rec := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		appended, err := w.sync(ctx, rec)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync transaction", "id", rec.ID, "error", err)
			failed++
			continue
		}
		if appended {
			synced++
		}
	}

	w.logger.InfoContext(ctx, "Pending sync completed",
		"total", len(pending),
		"synced", synced,
		"errors", failed)
	return synced, failed, nil
}

// sync appends rec to the spreadsheet once it holds the row's claim. The
// consumer and the poller both call it, so a row read as pending may already
// be taken; it is then skipped and appended reports false.
func (w *SyncWorker) sync(ctx context.Context, rec storage.Record) (appended bool, err error) {
	claimed, err := w.store.ClaimForSync(ctx, rec.ID)
	if err != nil {
		return false, err
	}
	if !claimed {
		w.logger.DebugContext(ctx, "Transaction claimed elsewhere or already synced, skipping", "id", rec.ID)
		return false, nil
	}

	ref, err := w.sheets.Append(ctx, rec.Transaction)
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, rec.ID, err); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error", "id", rec.ID, "error", markErr)
		}
		return false, fmt.Errorf("append to sheets: %w", err)
	}

	// The append went through; a bookkeeping failure must not trigger a second one.
	if err := w.store.MarkSynced(ctx, rec.ID, ref); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark as synced", "id", rec.ID, "error", err)
	}

	w.logger.InfoContext(ctx, "Successfully synced transaction",
		"id", rec.ID,
		"sheets_ref", ref,
		"date", rec.Transaction.Date,
		"item", rec.Transaction.Item)
	return true, nil
}
