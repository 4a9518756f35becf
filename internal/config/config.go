package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinStripeGrace is the shortest lifetime Stripe accepts for a checkout session.
const MinStripeGrace = 30 * time.Minute

type Config struct {
	Port           string
	Store          string // "postgres" or "memory"
	DatabaseURL    string
	RedisAddr      string
	CacheTTL       time.Duration
	JWTSecret      []byte
	AllowedOrigins []string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeCurrency      string
	StripeSuccessURL    string
	StripeCancelURL     string

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
	NotifyInterval    time.Duration

	ConfirmationGrace     time.Duration
	MaxDuration           time.Duration
	MaxClaimAttempts      int
	PartialRefundPercent  int64
	AllowMidSessionCancel bool
	SweepSchedule         string
	SweepOnRead           bool

	DemoSpots int

	AdminEmail    string
	AdminPassword string
}

// Load reads .env when present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		Port:                getenv("PORT", "8080"),
		Store:               strings.ToLower(getenv("STORE", "postgres")),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		JWTSecret:           []byte(os.Getenv("JWT_SECRET")),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeCurrency:      getenv("STRIPE_CURRENCY", "usd"),
		StripeSuccessURL:    getenv("STRIPE_SUCCESS_URL", "http://localhost:3000/reservation/success"),
		StripeCancelURL:     getenv("STRIPE_CANCEL_URL", "http://localhost:3000/reservation/cancel"),
		SendGridAPIKey:      os.Getenv("SENDGRID_API_KEY"),
		SendGridFromEmail:   os.Getenv("SENDGRID_FROM_EMAIL"),
		SendGridFromName:    getenv("SENDGRID_FROM_NAME", "ParkSpot"),
		TwilioAccountSID:    os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:    os.Getenv("TWILIO_FROM_NUMBER"),
		SweepSchedule:       getenv("SWEEP_SCHEDULE", "@every 30s"),
		AdminEmail:          os.Getenv("ADMIN_EMAIL"),
		AdminPassword:       os.Getenv("ADMIN_PASSWORD"),
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	var err error
	// Stripe checkout sessions expire at the confirmation deadline and cannot
	// be shorter than 30 minutes.
	graceDefault := "15m"
	if cfg.StripeSecretKey != "" {
		graceDefault = MinStripeGrace.String()
	}
	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"CACHE_TTL", "30s", &cfg.CacheTTL},
		{"NOTIFY_INTERVAL", "10s", &cfg.NotifyInterval},
		{"CONFIRMATION_GRACE", graceDefault, &cfg.ConfirmationGrace},
		{"MAX_DURATION", "168h", &cfg.MaxDuration},
	}
	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(getenv(d.key, d.def)); err != nil || *d.dst <= 0 {
			return Config{}, fmt.Errorf("invalid %s", d.key)
		}
	}
	if cfg.StripeSecretKey != "" && cfg.ConfirmationGrace < MinStripeGrace {
		return Config{}, fmt.Errorf("CONFIRMATION_GRACE must be at least %s when Stripe checkout is enabled", MinStripeGrace)
	}

	if cfg.MaxClaimAttempts, err = strconv.Atoi(getenv("MAX_CLAIM_ATTEMPTS", "10")); err != nil || cfg.MaxClaimAttempts < 1 {
		return Config{}, fmt.Errorf("invalid MAX_CLAIM_ATTEMPTS")
	}
	if cfg.PartialRefundPercent, err = strconv.ParseInt(getenv("PARTIAL_REFUND_PERCENT", "50"), 10, 64); err != nil ||
		cfg.PartialRefundPercent < 0 || cfg.PartialRefundPercent > 100 {
		return Config{}, fmt.Errorf("invalid PARTIAL_REFUND_PERCENT")
	}
	if cfg.AllowMidSessionCancel, err = strconv.ParseBool(getenv("ALLOW_MID_SESSION_CANCEL", "false")); err != nil {
		return Config{}, fmt.Errorf("invalid ALLOW_MID_SESSION_CANCEL")
	}
	if cfg.SweepOnRead, err = strconv.ParseBool(getenv("SWEEP_ON_READ", "true")); err != nil {
		return Config{}, fmt.Errorf("invalid SWEEP_ON_READ")
	}
	if cfg.DemoSpots, err = strconv.Atoi(getenv("DEMO_SPOTS", "10")); err != nil || cfg.DemoSpots < 0 {
		return Config{}, fmt.Errorf("invalid DEMO_SPOTS")
	}

	switch cfg.Store {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL not set")
		}
	case "memory":
	default:
		return Config{}, fmt.Errorf("invalid STORE %q, expected postgres or memory", cfg.Store)
	}
	return cfg, nil
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
