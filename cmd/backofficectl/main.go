// Command backofficectl runs operational tasks against the back-office
// database: schema migrations and bootstrap of the root admin account.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boddenberg/listas-backoffice-go/internal/config"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/migrate"
)

var databaseURL string

func main() {
	_ = config.LoadDotEnv(".env")
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:          "backofficectl",
		Short:        "Operational commands for the listas back-office",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection string (DATABASE_URL)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(adminCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := migrate.Up(ctx, databaseURL); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			version, err := migrate.Version(ctx, databaseURL)
			if err != nil {
				return fmt.Errorf("read schema version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate.Status(cmd.Context(), databaseURL)
		},
	})

	return cmd
}
