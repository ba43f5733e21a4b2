package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/market")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 4*7*24*time.Hour, cfg.MaxLeadTime)
	assert.Equal(t, 48*time.Hour, cfg.ResponseWindow)
	assert.Equal(t, 15*time.Minute, cfg.HoldTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.DraftTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, "marketplace.events", cfg.AMQPExchange)
	assert.Equal(t, "thb", cfg.Currency)
	assert.False(t, cfg.IsProduction())
}

func TestParseRequiresDSN(t *testing.T) {
	t.Setenv("DB_DSN", "")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/market")
	t.Setenv("ENV", "production")
	t.Setenv("HOLD_TTL", "30m")
	t.Setenv("PROCESSOR_RPS", "2.5")
	t.Setenv("OMISE_PUBLIC_KEY", "pkey_test")
	t.Setenv("OMISE_SECRET_KEY", "skey_test")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 30*time.Minute, cfg.HoldTTL)
	assert.InDelta(t, 2.5, cfg.ProcessorRPS, 0.001)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"non-positive lead time", func(c *Config) { c.MaxLeadTime = 0 }},
		{"half omise keys", func(c *Config) { c.OmisePublicKey = "pkey_test" }},
		{"half stream keys", func(c *Config) { c.StreamAPISecret = "secret" }},
		{"no workers", func(c *Config) { c.NotifyWorkers = 0 }},
		{"production without processor", func(c *Config) { c.Environment = "production" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_DSN", "postgres://localhost/market")
			cfg, err := Parse()
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
