package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"svcmarket/internal/config"
	"svcmarket/internal/repository"
)

func main() {
	var dsn string

	rootCmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the svcmarket Postgres schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "postgres connection string (defaults to SVCMARKET_POSTGRES_* env)")

	run := func(command string) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				cfg, err := config.NewDatabase()
				if err != nil {
					return fmt.Errorf("config: %w", err)
				}
				dsn = cfg.DSN()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()

			slog.Info("starting migration", "command", command)
			if err := repository.RunMigrations(ctx, dsn, command, args...); err != nil {
				return err
			}
			slog.Info("migration finished successfully", "command", command)
			return nil
		}
	}

	for _, c := range []struct{ name, short string }{
		{"up", "Apply all pending migrations"},
		{"down", "Roll back the latest migration"},
		{"status", "Print the status of every migration"},
		{"redo", "Roll back and re-apply the latest migration"},
		{"up-to", "Migrate up to a specific version"},
		{"down-to", "Roll back down to a specific version"},
	} {
		rootCmd.AddCommand(&cobra.Command{
			Use:   c.name,
			Short: c.short,
			RunE:  run(c.name),
		})
	}

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("migration error", "error", err)
		os.Exit(1)
	}
}
