package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"parkspot/internal/auth"
	"parkspot/internal/config"
	"parkspot/internal/service"
)

// NewTokenCmd issues a customer token for local development.
func NewTokenCmd() *cobra.Command {
	var customer string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a customer bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := requireSecret(cfg); err != nil {
				return err
			}
			id := uuid.New()
			if customer != "" {
				if id, err = uuid.Parse(customer); err != nil {
					return fmt.Errorf("invalid --customer: %w", err)
				}
			}
			token, err := auth.IssueToken(cfg.JWTSecret, id.String(), auth.RoleCustomer, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&customer, "customer", "", "customer id (random when empty)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func NewAdminCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Register an admin account",
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
			if err := service.NewAdminAuthService(a.admins, cfg.JWTSecret).CreateAdmin(ctx, email, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}
