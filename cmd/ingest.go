package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/comixcatalog/etl/internal/api"
	"github.com/comixcatalog/etl/internal/cache"
	"github.com/comixcatalog/etl/internal/clock/system"
	"github.com/comixcatalog/etl/internal/ingest"
	"github.com/comixcatalog/etl/internal/marvel"
)

// newIngestCmd creates the 'ingest' subcommand: load a curated worklist of
// series titles.
func newIngestCmd() *cobra.Command {
	var titlesFlag string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingests a worklist of series by title",
		Long: `Resolves each configured series title against the upstream gateway,
then crawls, normalizes and upserts its issues. Failures confined to one
series are recorded and skipped; the run continues.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			titles := appInstance.Config.Ingest.Titles
			if titlesFlag != "" {
				titles = splitTitles(titlesFlag)
			}
			if len(titles) == 0 {
				return fmt.Errorf("no series titles configured; set ingest.titles or pass --titles")
			}

			runner, cleanup, err := buildRunner(appInstance)
			if err != nil {
				return err
			}
			defer cleanup()

			summary, err := runner.Run(cmd.Context(), titles)
			if summary != nil {
				fmt.Print(summary.String())
			}
			if err != nil {
				return fmt.Errorf("ingest run: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&titlesFlag, "titles", "", "comma-separated series titles (overrides config)")
	return cmd
}

// buildRunner assembles the pipeline from the app's shared services. The
// returned cleanup stops the optional operational server.
func buildRunner(appInstance *App) (*ingest.Runner, func(), error) {
	cfg := appInstance.Config
	logger := appInstance.Logger

	responseCache, err := cache.Open(cfg.Cache.Dir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open response cache: %w", err)
	}

	client := marvel.NewClient(cfg.Marvel, logger)
	pause := marvel.TimerPauser{}

	seriesCrawler := marvel.NewSeriesCrawler(
		client, cfg.Marvel.PageSize, cfg.Ingest.MaxSeries,
		cfg.Ingest.PageDelay(), pause, logger)
	issueCrawler := marvel.NewIssueCrawler(
		client, cfg.Marvel.PageSize, cfg.Marvel.MaxPagesPer,
		cfg.Ingest.PageDelay(), pause, logger)
	source := marvel.NewSource(client, responseCache, seriesCrawler, issueCrawler, logger)

	runner := ingest.NewRunner(source, appInstance.Store, system.New(), pause, cfg.Ingest, logger)

	cleanup := func() {}
	if cfg.Server.Enabled {
		srv := api.NewServer(cfg.Server.Port, logger)
		srv.Start()
		cleanup = func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				logger.Warn("operational server shutdown", zap.Error(err))
			}
		}
	}
	return runner, cleanup, nil
}

func splitTitles(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
