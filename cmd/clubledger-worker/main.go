package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clubledger/internal/amqp"
	"clubledger/internal/cli"
	"clubledger/internal/core"
	"clubledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("starting clubledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auditWorker := worker.NewAuditWorker(repo)

	go func() {
		err := amqpClient.Consume(ctx, func(event core.AuditEvent) error {
			handleCtx, handleCancel := context.WithTimeout(ctx, cfg.ConsumeTimeout)
			defer handleCancel()
			return auditWorker.HandleEvent(handleCtx, event)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("audit consumption failed", "error", err)
		}
		cancel()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	logger.Info("shutting down worker")
	cancel()

	// Give in-flight handlers a moment to finish.
	time.Sleep(2 * time.Second)
	logger.Info("worker shutdown complete")
}
