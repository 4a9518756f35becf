package cli

import (
	"github.com/spf13/cobra"
)

func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "parkspot",
		Short:        "Parking spot reservation engine",
		SilenceUsage: true,
	}
	cmd.AddCommand(NewServerCmd())
	cmd.AddCommand(NewSweepCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewTokenCmd())
	cmd.AddCommand(NewAdminCmd())
	return cmd
}

func Execute() error {
	return NewRoot().Execute()
}
