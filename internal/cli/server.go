package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"parkspot/internal/api"
	"parkspot/internal/config"
	"parkspot/internal/migrate"
	"parkspot/internal/service"
)

func NewServerCmd() *cobra.Command {
	var runMigrations bool
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP API, the expiry sweeper and the notifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := requireSecret(cfg); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if runMigrations && a.sqlDB != nil {
				if err := migrate.Up(ctx, a.sqlDB); err != nil {
					return err
				}
			}
			if err := a.bootstrapAdmin(ctx); err != nil {
				return err
			}
			if err := a.reservations.Rebuild(ctx); err != nil {
				return err
			}

			if err := a.jobs.Start(ctx, cfg.SweepSchedule); err != nil {
				return err
			}
			defer a.jobs.Stop()

			if notifier := a.notifier(); notifier != nil {
				if err := notifier.FastForward(ctx); err != nil {
					log.Printf("Error skipping already-sent notifications: %v", err)
				}
				go notifier.Run(ctx, cfg.NotifyInterval)
			}

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           api.NewRouter(a.handlers(), cfg.JWTSecret, cfg.AllowedOrigins),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Printf("Server running on port %s", cfg.Port)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				log.Println("Shutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&runMigrations, "migrate", true, "apply pending migrations before serving")
	return cmd
}

func (a *app) handlers() api.Handlers {
	user := api.NewUserReservationHandler(a.reservations)
	user.Contacts = a.contacts
	h := api.Handlers{
		User:      user,
		Admin:     api.NewAdminHandler(service.NewAdminService(a.reservations)),
		AdminAuth: api.NewAdminAuthHandler(service.NewAdminAuthService(a.admins, a.cfg.JWTSecret)),
	}
	var stripeSvc *service.StripeService
	if a.cfg.StripeSecretKey != "" {
		stripeSvc = service.NewStripeService(a.cfg.StripeSecretKey, a.cfg.StripeCurrency, a.cfg.StripeSuccessURL, a.cfg.StripeCancelURL)
		user.Checkout = stripeSvc
		user.Refunds = stripeSvc
	}
	if a.cfg.StripeWebhookSecret != "" {
		h.Stripe = api.NewStripeWebhookHandler(a.cfg.StripeWebhookSecret, a.reservations)
		if stripeSvc != nil {
			h.Stripe.Refunds = stripeSvc
		}
	}
	return h
}

// notifier is nil when neither email nor SMS delivery is configured.
func (a *app) notifier() *service.NotifyService {
	var email service.EmailSender
	var sms service.SMSSender
	if a.cfg.SendGridAPIKey != "" {
		email = service.SendGridSender{APIKey: a.cfg.SendGridAPIKey, FromEmail: a.cfg.SendGridFromEmail, FromName: a.cfg.SendGridFromName}
	}
	if a.cfg.TwilioAccountSID != "" {
		sms = service.TwilioSender{AccountSID: a.cfg.TwilioAccountSID, AuthToken: a.cfg.TwilioAuthToken, FromNumber: a.cfg.TwilioFromNumber}
	}
	if email == nil && sms == nil {
		return nil
	}
	return service.NewNotifyService(a.reservations, a.contacts, email, sms)
}
