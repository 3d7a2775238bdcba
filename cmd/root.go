// Package cmd defines and implements the CLI commands for the comixetl
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/comixcatalog/etl/internal/config"
	"github.com/comixcatalog/etl/internal/logging"
	"github.com/comixcatalog/etl/internal/metrics"
	"github.com/comixcatalog/etl/internal/store"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App bundles the shared services commands need.
type App struct {
	Config config.Config
	Logger *zap.Logger
	Store  *store.Store
}

// Close releases the application's resources.
func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
}

// newApp is the application factory. It's a variable so tests can replace it
// with a mock factory.
var newApp = func(ctx context.Context) (*App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	metrics.Init()

	st, err := store.New(ctx, cfg.DB, cfg.Ingest.SourceSystem, cfg.Ingest.OverwriteExisting, logger)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	return &App{Config: cfg, Logger: logger, Store: st}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comixetl",
		Short: "Ingests the comics catalog from the upstream gateway into Postgres.",
		Long: `comixetl is the ingestion tool for the ComixCatalog project.
It crawls series and issues from the upstream gateway API with signed,
rate-limited requests and loads them idempotently into the relational
catalog, recording an audit row per run.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*App); ok && appInstance != nil {
				appInstance.Close()
			}
		},

		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: none, env only)")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newCatalogCmd())
	cmd.AddCommand(newInitDBCmd())

	return cmd
}

// Execute is the main entry point. Exit code is zero only for runs that
// finished, even ones with individual series skipped or failed.
func Execute() {
	// Credentials usually live in a .env file during development; a missing
	// file is fine.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*App, error) {
	appInstance, ok := ctx.Value(appKey).(*App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}
