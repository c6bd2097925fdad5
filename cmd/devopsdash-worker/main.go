package main

import (
	"context"
	"errors"
	"os"
	"time"

	"devopsdash/internal/amqp"
	"devopsdash/internal/backend"
	"devopsdash/internal/cli"
	"devopsdash/internal/log"
	"devopsdash/internal/services"
	"devopsdash/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting devopsdash-worker")

	cfg := cli.LoadAndValidateWorkerConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).
		CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	processorCfg := services.DefaultMoveProcessorConfig()
	processorCfg.PollInterval = cfg.SweepInterval
	processorCfg.BatchSize = cfg.SweepBatchSize
	processor := services.NewMoveProcessor(repo, res.Factory, cfg.AzureToken, processorCfg)
	moveWorker := worker.NewMoveWorker(repo, processor)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Warn("AMQP disabled - only the periodic sweep applies moves")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Error("Failed to stop move processor", log.FieldError, err)
		}
	})

	// On startup, apply any pending moves that might have been missed
	logger.Info("Performing startup move check...")
	if err := moveWorker.StartupCheck(ctx); err != nil {
		logger.Error("Failed startup move check", log.FieldError, err)
	}

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start move processor", log.FieldError, err)
		os.Exit(1)
	}

	if amqpClient != nil {
		go func() {
			if err := amqpClient.ConsumeWithReconnect(ctx, moveWorker.HandleMoveMessage); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
