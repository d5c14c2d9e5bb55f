// Package cli holds the process bootstrap shared by cmd/courses,
// cmd/courses-worker and cmd/coursesctl.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"courses/internal/amqp"
	"courses/internal/api"
	"courses/internal/backend"
	"courses/internal/config"
	applog "courses/internal/log"
	"courses/internal/services"
	"courses/internal/sheets"
	gsheet "courses/internal/sheets/google"
)

// SetupLogger builds the process logger at LOG_LEVEL and installs it as the
// slog default.
func SetupLogger(component string, out io.Writer) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: component,
		Output:    out,
	})
	slog.SetDefault(logger.Logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// OpenLocalStore creates the configured fallback store or exits.
func OpenLocalStore(ctx context.Context, logger *applog.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid local backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.WithComponent(applog.ComponentStorage).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to open local store", applog.FieldError, err, "backend", cfg.LocalBackend)
		os.Exit(1)
	}
	return result
}

// NewRemote returns the API client; an empty API_BASE_URL gives a client
// that always reports ErrDisabled.
func NewRemote(logger *applog.Logger, cfg *config.Config) *api.Client {
	client := api.NewClient(cfg.APIBaseURL, cfg.APITimeout)
	if client.Enabled() {
		logger.Info("Remote API configured", "base_url", client.BaseURL(), "timeout", cfg.APITimeout)
	} else {
		logger.Info("Remote API disabled, running in local-only mode")
	}
	return client
}

// ConnectAMQP dials the broker when AMQP_URL is set. It returns nil when
// messaging is not configured or the broker is unreachable; the periodic
// drain covers purchases saved meanwhile.
func ConnectAMQP(logger *applog.Logger, cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - no AMQP_URL provided")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, continuing without sync messages", applog.FieldError, err)
		return nil
	}
	logger.Info("AMQP connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client
}

// NewPurchaseService wires the remote client, the local store and, when
// given, the AMQP publisher.
func NewPurchaseService(logger *applog.Logger, cfg *config.Config, store *backend.BackendResult, publisher *amqp.Client) *services.PurchaseService {
	opts := []services.Option{
		services.WithLogger(logger.WithComponent(applog.ComponentPurchase).Logger),
	}
	if publisher != nil {
		opts = append(opts, services.WithPublisher(publisher))
	}
	return services.NewPurchaseService(NewRemote(logger, cfg), store.Store, opts...)
}

// NewSheetsExporter returns nil, nil when no spreadsheet is configured.
func NewSheetsExporter(ctx context.Context, cfg *config.Config) (sheets.PurchaseExporter, error) {
	if !cfg.SheetsEnabled() {
		return nil, nil
	}
	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// GracefulShutdown cancels the returned context on SIGINT/SIGTERM after
// running cleanup with the given timeout. done is closed once cleanup
// returns.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		cancel()

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ran.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
