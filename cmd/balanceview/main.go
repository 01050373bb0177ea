package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"balanceview/internal/advisor"
	"balanceview/internal/amqp"
	"balanceview/internal/auth"
	"balanceview/internal/cache"
	"balanceview/internal/cli"
	"balanceview/internal/core"
	apphttp "balanceview/internal/http"
	"balanceview/internal/ledger"
	"balanceview/internal/log"
	"balanceview/internal/metrics"
	"balanceview/internal/migration"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.MustLoadConfig(true)
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	logger.Info("Starting balanceview", log.FieldOperation, log.OpStartup, "port", cfg.Port)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	m := metrics.New()

	snapshots := cache.NewLRUCache[core.MonthSnapshot](cfg.CacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(snapshots)
	defer cacheManager.Stop()

	ledgerOpts := []ledger.Option{
		ledger.WithCache(snapshots),
		ledger.WithMetrics(m),
		ledger.WithWriteTimeout(cfg.WriteTimeout),
		ledger.WithLogger(logger.WithComponent(log.ComponentLedger)),
	}

	retention, err := migration.ParseRetention(cfg.RetentionPolicy)
	if err != nil {
		logger.Error("Invalid retention policy", log.FieldError, err)
		os.Exit(1)
	}
	migrationOpts := []migration.Option{
		migration.WithRetention(retention),
		migration.WithMetrics(m),
		migration.WithLogger(logger.WithComponent(log.ComponentMigration)),
	}

	var amqpClient *amqp.Client
	if cfg.AMQPEnabled() {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		ledgerOpts = append(ledgerOpts, ledger.WithNotifier(amqpClient))
		migrationOpts = append(migrationOpts, migration.WithPurgeScheduler(amqpClient))
		logger.Info("AMQP enabled", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	l := ledger.New(repo, ledgerOpts...)
	migrationOpts = append(migrationOpts, migration.WithAnnouncer(l))
	migrations := migration.NewService(repo, migrationOpts...)
	cacheManager.Register(migrations.Sessions())
	cacheManager.StartCleanup(time.Minute)

	var gen advisor.Generator
	if cfg.AdvisorEnabled() {
		gemini, err := advisor.NewGemini(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("Failed to initialize advisor", log.FieldError, err)
			os.Exit(1)
		}
		gen = gemini
		logger.Info("Advisor enabled", "model", cfg.GeminiModel)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:          l,
		Migration:       migrations,
		Accounts:        auth.NewPasswordAuthenticator(repo),
		Tokens:          auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL),
		Profiles:        repo,
		Advisor:         advisor.New(gen),
		Metrics:         m,
		Logger:          logger.WithComponent(log.ComponentHTTP),
		Ready:           repo.Ping,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to start", log.FieldError, err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldOperation, log.OpShutdown, log.FieldError, err)
	}
	logger.Info("Server stopped", log.FieldOperation, log.OpShutdown)
}
