package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Empty(t, cfg.Persistence.Address, "embedded backend by default")
	assert.Equal(t, "localbase", cfg.Persistence.KeyPrefix)
	assert.Equal(t, 100*time.Millisecond, cfg.Latency.Min)
	assert.Equal(t, 300*time.Millisecond, cfg.Latency.Max)
	assert.Equal(t, time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, 5*time.Minute, cfg.Auth.RefreshThreshold)
	assert.Contains(t, cfg.Auth.Providers, "google")
	assert.Contains(t, cfg.Auth.Providers, "github")
	assert.NotEmpty(t, cfg.Auth.TokenSecret)
	assert.NotEmpty(t, cfg.Storage.PublicURLBase)
}

func TestInstant(t *testing.T) {
	cfg := Instant()

	assert.Zero(t, cfg.Latency.Min)
	assert.Zero(t, cfg.Latency.Max)
	assert.Zero(t, cfg.Auth.OAuthDelay)
	assert.Zero(t, cfg.Realtime.SubscribeDelay)
	assert.Positive(t, cfg.Auth.RefreshInterval, "refresh loop still ticks")
	assert.Equal(t, Default().Auth.SessionTTL, cfg.Auth.SessionTTL)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("LOCALBASE_REDIS_ADDRESS", "127.0.0.1:6400")
	t.Setenv("LOCALBASE_REDIS_DB", "3")
	t.Setenv("LOCALBASE_TOKEN_SECRET", "override-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:6400", cfg.Persistence.Address)
	assert.Equal(t, 3, cfg.Persistence.DB)
	assert.Equal(t, "override-secret", cfg.Auth.TokenSecret)
}
