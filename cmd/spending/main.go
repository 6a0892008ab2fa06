package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"spending/internal/aggregate"
	"spending/internal/backend"
	"spending/internal/budget"
	"spending/internal/cli"
	"spending/internal/config"
	apphttp "spending/internal/http"
	applog "spending/internal/log"
	"spending/internal/services"
)

func main() {
	cfg, err := cli.LoadConfig((*config.Config).Validate)
	if err != nil {
		cli.Fatal(nil, "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, applog.ComponentApp, os.Stdout)

	table, err := budget.Load(cfg.BudgetsFile)
	if err != nil {
		cli.Fatal(logger, "Failed to load budgets", err)
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	store, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}

	agg := aggregate.New(store.Ledger, cfg.SnapshotCacheTTL, logger.WithComponent(applog.ComponentAggregate).Logger).
		WithLoadTimeout(cfg.RequestTimeout)
	ledger := services.NewLedgerService(agg, store.Ledger, table, services.Options{
		TopN:      cfg.RecommendTopN,
		Publisher: store.Publisher,
		Logger:    logger.WithComponent(applog.ComponentLedger).Logger,
	})

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		RequestTimeout: cfg.RequestTimeout,
		Ledger:         ledger,
		Ready:          store.Ping,
		Logger:         logger,
	})
	if err != nil {
		cli.Fatal(logger, "Failed to build HTTP server", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting spending server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"categories", len(table),
			"cache_ttl", cfg.SnapshotCacheTTL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		}
	}

	cli.Shutdown(logger, 30*time.Second,
		srv.Shutdown,
		func(context.Context) error { return store.Close() },
	)
}
