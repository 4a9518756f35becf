package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("STORE", "memory")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.ConfirmationGrace)
	assert.Equal(t, 7*24*time.Hour, cfg.MaxDuration)
	assert.Equal(t, 10, cfg.MaxClaimAttempts)
	assert.Equal(t, int64(50), cfg.PartialRefundPercent)
	assert.False(t, cfg.AllowMidSessionCancel)
	assert.True(t, cfg.SweepOnRead)
	assert.Equal(t, "@every 30s", cfg.SweepSchedule)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/parkspot?sslmode=disable")
	t.Setenv("CONFIRMATION_GRACE", "5m")
	t.Setenv("MAX_CLAIM_ATTEMPTS", "3")
	t.Setenv("ALLOW_MID_SESSION_CANCEL", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.ConfirmationGrace)
	assert.Equal(t, 3, cfg.MaxClaimAttempts)
	assert.True(t, cfg.AllowMidSessionCancel)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"postgres without url": {"STORE", "postgres"},
		"unknown store":        {"STORE", "sqlite"},
		"bad grace":            {"CONFIRMATION_GRACE", "soon"},
		"zero attempts":        {"MAX_CLAIM_ATTEMPTS", "0"},
		"refund over 100":      {"PARTIAL_REFUND_PERCENT", "150"},
		"bad bool":             {"SWEEP_ON_READ", "sometimes"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("STORE", "memory")
			t.Setenv("DATABASE_URL", "")
			t.Setenv(kv[0], kv[1])
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFromEnvStripeGrace(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.ConfirmationGrace, "checkout sessions cannot expire sooner")

	t.Setenv("CONFIRMATION_GRACE", "45m")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, cfg.ConfirmationGrace)

	t.Setenv("CONFIRMATION_GRACE", "15m")
	_, err = FromEnv()
	assert.Error(t, err)
}
