package main

import (
	"os"

	"balanceview/internal/amqp"
	"balanceview/internal/cli"
	"balanceview/internal/log"
	"balanceview/internal/metrics"
	"balanceview/internal/migration"
	"balanceview/internal/sheets"
	gsheet "balanceview/internal/sheets/google"
	"balanceview/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustLoadConfig(false)
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting balanceview-worker", log.FieldOperation, log.OpStartup)

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	m := metrics.New()
	purger := migration.NewService(repo,
		migration.WithMetrics(m),
		migration.WithLogger(logger.WithComponent(log.ComponentMigration)))

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	var exporter sheets.MonthExporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, gsheet.Credentials{
			JSON: cfg.GoogleServiceAccountJSON,
			File: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	bindings := []amqp.Binding{{Queue: cfg.AMQPPurgeQueue, RoutingKey: amqp.RoutingLegacyMigrated}}
	if exporter != nil {
		bindings = append(bindings, amqp.Binding{Queue: cfg.AMQPExportQueue, RoutingKey: amqp.RoutingLedgerChanged})
	}
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, bindings...)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	w := worker.NewSyncWorker(purger, repo, exporter, m)
	err = w.Run(ctx, amqpClient, worker.Queues{
		Purge:    cfg.AMQPPurgeQueue,
		Export:   cfg.AMQPExportQueue,
		Prefetch: cfg.WorkerConcurrent,
	})
	if err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped", log.FieldOperation, log.OpShutdown)
}
