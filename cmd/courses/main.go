package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"courses/internal/cli"
	apphttp "courses/internal/http"
	applog "courses/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp, os.Stdout)
	cfg := cli.LoadAndValidateConfig(logger)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	store := cli.OpenLocalStore(startCtx, logger, cfg)

	publisher := cli.ConnectAMQP(logger, cfg)
	if publisher != nil {
		defer publisher.Close()
	}

	svc := cli.NewPurchaseService(logger, cfg, store, publisher)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close local store", applog.FieldError, err)
		}
	}()

	exporter, err := cli.NewSheetsExporter(startCtx, cfg)
	cancelStart()
	if err != nil {
		logger.Warn("Google Sheets export disabled", applog.FieldError, err)
		exporter = nil
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:           logger,
		StatsCacheTTL:    cfg.StatsCacheTTL,
		TopProductsLimit: cfg.TopProductsLimit,
		Exporter:         exporter,
	})

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
	})

	logger.Info("Starting courses server",
		"port", cfg.Port,
		"backend", cfg.LocalBackend,
		"remote", cfg.RemoteEnabled(),
		"sheets", exporter != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
