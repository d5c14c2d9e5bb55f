package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"courses/internal/cli"
	applog "courses/internal/log"
	"courses/internal/services"
	"courses/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker, os.Stdout)
	logger.Info("Starting courses-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	remote := cli.NewRemote(logger, cfg)
	if !remote.Enabled() {
		logger.Info("Nothing to sync without a remote API, exiting")
		return
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	store := cli.OpenLocalStore(startCtx, logger, cfg)
	cancelStart()
	if store.Cleanup != nil {
		defer func() {
			if err := store.Cleanup(); err != nil {
				logger.Error("Failed to close local store", applog.FieldError, err)
			}
		}()
	}

	consumer := cli.ConnectAMQP(logger, cfg)
	if consumer != nil {
		defer consumer.Close()
	}

	syncWorker := worker.NewSyncWorker(remote, store.Store, cfg.SyncBatchSize)
	processor := services.NewSyncProcessor(syncWorker, services.SyncProcessorConfig{
		PollInterval: cfg.SyncInterval,
		Logger:       logger.Logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Error("Sync processor stop failed", applog.FieldError, err)
		}
	})

	// Recover purchases whose messages were lost while the worker was down
	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", applog.FieldError, err)
	}

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start sync processor", applog.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	if consumer != nil {
		g.Go(func() error {
			err := consumer.ConsumePurchaseSync(gctx, syncWorker.HandleSyncMessage)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("Skipping AMQP message consumption, relying on periodic sync")
	}

	if err := g.Wait(); err != nil {
		logger.Error("Message consumption failed", applog.FieldError, err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
