package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCatalogCmd creates the 'catalog' subcommand: crawl the entire upstream
// catalog by title prefix instead of a curated worklist.
func newCatalogCmd() *cobra.Command {
	var maxSeries int

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Ingests the full upstream catalog",
		Long: `Enumerates every series in the upstream catalog by crawling title
prefixes (0-9, A-Z), then ingests each one. This can run for hours; enable
the operational server to watch progress via /metrics.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			runner, cleanup, err := buildRunner(appInstance)
			if err != nil {
				return err
			}
			defer cleanup()

			limit := maxSeries
			if limit == 0 {
				limit = appInstance.Config.Ingest.MaxSeries
			}

			summary, err := runner.RunCatalog(cmd.Context(), limit)
			if summary != nil {
				fmt.Print(summary.String())
			}
			if err != nil {
				return fmt.Errorf("catalog run: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxSeries, "max-series", 0, "stop after this many series (0 = unbounded)")
	return cmd
}
