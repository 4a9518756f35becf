package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"parkspot/internal/config"
	"parkspot/internal/migrate"
)

func NewSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiry sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.reservations.Rebuild(ctx); err != nil {
				return err
			}
			report, err := a.jobs.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired=%d activated=%d completed=%d\n", report.Expired, report.Activated, report.Completed)
			return nil
		},
	}
}

func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Store != "postgres" {
				return fmt.Errorf("migrate needs STORE=postgres")
			}
			ctx := context.Background()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return migrate.Up(ctx, a.sqlDB)
		},
	}
}
