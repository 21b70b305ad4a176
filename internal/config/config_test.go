package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PROVIDER_URL", "https://provider.example.com/api/v2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultCheckConcurrency, cfg.CheckConcurrency)
	assert.Equal(t, DefaultMinCheckInterval, cfg.MinCheckInterval)
	assert.Equal(t, DefaultReconcileTimeout, cfg.ReconcileTimeout)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PROVIDER_URL", "https://provider.example.com/api/v2")
	t.Setenv("CHECK_CONCURRENCY", "4")
	t.Setenv("MIN_CHECK_INTERVAL", "90s")
	t.Setenv("ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.CheckConcurrency)
	assert.Equal(t, 90*time.Second, cfg.MinCheckInterval)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_MissingProviderURL(t *testing.T) {
	t.Setenv("PROVIDER_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROVIDER_URL")
}

func TestValidate_BadConcurrency(t *testing.T) {
	cfg := &Config{
		ProviderURL:      "https://provider.example.com",
		CheckConcurrency: 0,
		MinCheckInterval: time.Minute,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHECK_CONCURRENCY")
}
