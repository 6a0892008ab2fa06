package main

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"spending/internal/amqp"
	"spending/internal/backend"
	"spending/internal/cli"
	"spending/internal/config"
	applog "spending/internal/log"
	gsheet "spending/internal/sheets/google"
	"spending/internal/storage"
	"spending/internal/worker"
)

func main() {
	cfg, err := cli.LoadConfig((*config.Config).ValidateWorker)
	if err != nil {
		cli.Fatal(nil, "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, applog.ComponentWorker, os.Stdout)
	logger.Info("Starting ledger-worker")

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize SQLite repository", err)
	}
	defer repo.Close()

	sheetsClient, err := gsheet.New(ctx, backend.SheetsConfig(cfg), logger.WithComponent(applog.ComponentSheets).Logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	syncWorker := worker.NewSyncWorker(repo, sheetsClient, cfg.SyncBatchSize, logger.Logger)

	// The poller's first run also catches rows whose messages were lost.
	poller := worker.NewPoller(syncWorker, cfg.SyncInterval)
	if err := poller.Start(ctx); err != nil {
		cli.Fatal(logger, "Failed to start sync poller", err)
	}

	var consumers sync.WaitGroup
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// The poller alone still drains the backlog.
			logger.Error("Failed to initialize AMQP client, relying on polling", applog.FieldError, err)
		} else {
			consumers.Add(1)
			go func() {
				defer consumers.Done()
				err := amqpClient.ConsumeTransactionSync(ctx, syncWorker.HandleSyncMessage)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Message consumption failed", applog.FieldError, err)
				}
			}()
		}
	} else {
		logger.Info("AMQP_URL not set, relying on polling only", "interval", cfg.SyncInterval)
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	cli.Shutdown(logger, 30*time.Second,
		poller.Stop,
		func(context.Context) error {
			consumers.Wait()
			if amqpClient == nil {
				return nil
			}
			return amqpClient.Close()
		},
	)
}
