package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"HTTP_ADDRESS", "ADSET_API_KEY", "JWT_SECRET_KEY", "DB_DSN", "LOG_LEVEL",
		"MCP_TRANSPORT", "META_ACCESS_TOKEN", "META_ACCESS_TOKEN_FILE", "META_GRAPH_URL",
		"META_API_TIMEOUT", "META_API_RATE", "META_API_RETRIES", "CALLBACK_HOST", "CALLBACK_BIND_HOST",
		"CALLBACK_PORT", "CONFIRMATION_TTL", "UPDATE_DEFAULTS_FILE",
	} {
		t.Setenv(name, "")
	}
}

func TestNewConfig(t *testing.T) {
	t.Run("Should apply defaults", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("JWT_SECRET_KEY", "secret")

		cfg, err := NewConfig()
		require.NoError(t, err)

		assert.Equal(t, ":8081", cfg.HttpAddress)
		assert.True(t, cfg.HttpEnabled)
		assert.Equal(t, ":memory:", cfg.DB.DSN)
		assert.False(t, cfg.MCP.Enabled)
		assert.Equal(t, "https://graph.facebook.com/v22.0", cfg.Meta.GraphURL)
		assert.Equal(t, 30*time.Second, cfg.Meta.Timeout)
		assert.Equal(t, 2, cfg.Meta.Retries)
		assert.Equal(t, "localhost", cfg.Callback.Host)
		assert.Equal(t, "127.0.0.1", cfg.Callback.BindHost)
		assert.Equal(t, 5.0, cfg.Meta.RatePerSec)
		assert.Equal(t, 0, cfg.Callback.Port)
		assert.Equal(t, 15*time.Minute, cfg.Callback.ConfirmationTTL)
		assert.Empty(t, cfg.Callback.UpdateDefaultsFile)
	})

	t.Run("Should require a JWT secret when HTTP is enabled", func(t *testing.T) {
		clearEnv(t)
		_, err := NewConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SECRET_KEY")
	})

	t.Run("Should read overrides", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("JWT_SECRET_KEY", "secret")
		t.Setenv("MCP_TRANSPORT", "stdio")
		t.Setenv("META_GRAPH_URL", "http://graph.test/v1/")
		t.Setenv("CALLBACK_PORT", "8899")
		t.Setenv("CONFIRMATION_TTL", "2m")
		t.Setenv("META_ACCESS_TOKEN", "tok")
		t.Setenv("CALLBACK_HOST", "agent.internal")
		t.Setenv("CALLBACK_BIND_HOST", "0.0.0.0")
		t.Setenv("META_API_RATE", "2.5")
		t.Setenv("META_API_RETRIES", "4")
		t.Setenv("META_API_TIMEOUT", "45s")

		cfg, err := NewConfig()
		require.NoError(t, err)

		assert.True(t, cfg.MCP.Enabled)
		assert.Equal(t, "http://graph.test/v1", cfg.Meta.GraphURL)
		assert.Equal(t, 8899, cfg.Callback.Port)
		assert.Equal(t, 2*time.Minute, cfg.Callback.ConfirmationTTL)
		assert.Equal(t, "tok", cfg.Meta.AccessToken)
		assert.Equal(t, "agent.internal", cfg.Callback.Host)
		assert.Equal(t, "0.0.0.0", cfg.Callback.BindHost)
		assert.Equal(t, 2.5, cfg.Meta.RatePerSec)
		assert.Equal(t, 4, cfg.Meta.Retries)
		assert.Equal(t, 45*time.Second, cfg.Meta.Timeout)
	})

	t.Run("Should reject malformed values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("JWT_SECRET_KEY", "secret")
		t.Setenv("CONFIRMATION_TTL", "soon")
		_, err := NewConfig()
		require.Error(t, err)

		t.Setenv("CONFIRMATION_TTL", "")
		t.Setenv("CALLBACK_PORT", "70000")
		_, err = NewConfig()
		require.Error(t, err)

		t.Setenv("CALLBACK_PORT", "")
		t.Setenv("META_API_RETRIES", "many")
		_, err = NewConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "META_API_RETRIES")

		t.Setenv("META_API_RETRIES", "")
		t.Setenv("META_API_RATE", "fast")
		_, err = NewConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "META_API_RATE")
	})
}
