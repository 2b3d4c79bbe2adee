package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"clubledger/internal/backend"
	"clubledger/internal/cli"
	apphttp "clubledger/internal/http"
	"clubledger/internal/ledger"
	applog "clubledger/internal/log"
)

func main() {
	cli.LoadEnvFile()
	slogger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(slogger)

	logger := applog.New(applog.Config{Component: applog.ComponentApp})

	ctx := context.Background()
	result, err := backend.Build(ctx, cfg, logger)
	if err != nil {
		slogger.Error("failed to build backend", "error", err)
		os.Exit(1)
	}

	auditor := ledger.NewAuditor(result.Audit, logger)
	years := ledger.NewYearService(result.Store, auditor, logger,
		cfg.DefaultWeeklyInstallments, cfg.FreezePaidAmounts)
	subscriptions := ledger.NewSubscriptionService(result.Store, auditor, logger)
	records := ledger.NewRecordService(result.Store, auditor, logger)
	finance := ledger.NewFinanceService(result.Store, result.Exporter, auditor, logger)

	srv := apphttp.NewServer(":"+cfg.Port, years, subscriptions, records, finance, result.Store)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	shutdownCtx, done := cli.GracefulShutdown(slogger, 30*time.Second, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slogger.Error("server shutdown error", "error", err)
		}
		if err := result.Cleanup(); err != nil {
			slogger.Error("backend cleanup error", "error", err)
		}
	})

	slogger.Info("starting clubledger server",
		"port", cfg.Port,
		"backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slogger.Error("server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	slogger.Info("server stopped gracefully")
}
