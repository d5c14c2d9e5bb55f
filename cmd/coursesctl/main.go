// Command coursesctl manages purchases from the terminal, with the same
// remote-first, local-fallback behaviour as the web UI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"courses/internal/cli"
	"courses/internal/config"
	"courses/internal/core"
	applog "courses/internal/log"
	"courses/internal/sheets"
)

// purchaseService is the part of services.PurchaseService the commands use.
type purchaseService interface {
	History(ctx context.Context, q string, order core.SortOrder) ([]core.Purchase, error)
	Save(ctx context.Context, date core.Date, items []core.Item) (core.Purchase, error)
	Remove(ctx context.Context, id string) error
	Totals(ctx context.Context, r core.DateRange) (core.Totals, error)
	TopProducts(ctx context.Context, n int) ([]core.ProductStat, error)
	Monthly(ctx context.Context) ([]core.MonthTotal, error)
	Export(ctx context.Context) ([]core.Purchase, error)
	Import(ctx context.Context, data []byte) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

var (
	// Global flags
	verbose bool
	asJSON  bool
	timeout time.Duration

	logger *applog.Logger
	cfg    *config.Config
	svc    purchaseService

	// newExporter opens the Sheets client on demand for export --sheets
	newExporter = func(ctx context.Context) (sheets.PurchaseExporter, error) {
		return cli.NewSheetsExporter(ctx, cfg)
	}
)

var rootCmd = &cobra.Command{
	Use:   "coursesctl",
	Short: "Record and analyse grocery purchases",
	Long: `coursesctl talks to the purchases API and falls back to the local
store (SQLite, Redis or memory, see LOCAL_BACKEND) when the API is down.

Configuration comes from the environment and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if svc != nil {
			return nil
		}
		cli.LoadEnvFile()
		if verbose {
			_ = os.Setenv("LOG_LEVEL", "debug")
		}
		logger = cli.SetupLogger(applog.ComponentCLI, os.Stderr)
		cfg = cli.LoadAndValidateConfig(logger)

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		store := cli.OpenLocalStore(ctx, logger, cfg)
		svc = cli.NewPurchaseService(logger, cfg, store, nil)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for opening the local store")

	rootCmd.AddCommand(listCmd, addCmd, rmCmd, totalsCmd, topCmd, monthlyCmd, exportCmd, importCmd, clearCmd)
}

// run executes the command line and closes the local store whether or not
// the command succeeded.
func run(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if svc != nil {
		if cerr := svc.Close(); cerr != nil && logger != nil {
			logger.Warn("Failed to close local store", applog.FieldError, cerr)
		}
	}
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
