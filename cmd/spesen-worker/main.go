package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"spesen/internal/amqp"
	"spesen/internal/config"
	"spesen/internal/export"
	gsheet "spesen/internal/export/google"
	applog "spesen/internal/log"
	"spesen/internal/storage"
	"spesen/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Component: "spesen-worker"})
	applog.SetDefault(logger)

	logger.Info("Starting spesen-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Google Sheets is optional; without it the worker only drains the
	// queue so messages do not pile up.
	var (
		rowWriter  export.RowWriter
		rowDeleter export.RowDeleter
	)
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.ReportSheetBase)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		rowWriter, rowDeleter = client, client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var exportWorker *worker.ExportWorker
	if rowWriter != nil {
		exportWorker = worker.NewExportWorker(repo, rowWriter, rowDeleter, cfg.SyncBatchSize)

		// Recover entries missed while the worker was down.
		logger.Info("Performing startup sync check...")
		if err := exportWorker.StartupSyncCheck(ctx); err != nil {
			logger.Error("Failed startup sync check", "error", err)
			// Don't exit - continue with normal operation
		}
	} else {
		logger.Info("Skipping report export - no sheets client available")
	}

	if exportWorker != nil {
		go func() {
			err := amqpClient.ConsumeEntryMessages(ctx,
				func(msg *amqp.EntrySyncMessage) error { return exportWorker.HandleSyncMessage(ctx, msg) },
				func(msg *amqp.EntryDeleteMessage) error { return exportWorker.HandleDeleteMessage(ctx, msg) })
			if err != nil && err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}()

		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := exportWorker.ProcessPendingEntries(ctx); err != nil {
						logger.Error("Periodic sync failed", "error", err)
					}
				}
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	// Give the consumer a moment to finish the current delivery.
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
