package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newInitDBCmd creates the 'initdb' subcommand.
func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Creates the catalog tables if they do not exist",

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Store.CreateSchema(cmd.Context()); err != nil {
				return fmt.Errorf("init db: %w", err)
			}
			appInstance.Logger.Info("database initialized")
			return nil
		},
	}
}
