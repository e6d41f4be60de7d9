package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestEnvVars(t *testing.T) {
	t.Run("port gets a colon prefix", func(t *testing.T) {
		t.Setenv("PORT", "9090")
		require.Equal(t, ":9090", config.New().GetPort())
	})

	t.Run("port already prefixed", func(t *testing.T) {
		t.Setenv("PORT", ":7070")
		require.Equal(t, ":7070", config.New().GetPort())
	})

	t.Run("duration parsing", func(t *testing.T) {
		t.Setenv("ACCESS_TOKEN_TTL", "90s")
		require.Equal(t, 90*time.Second, config.New().GetAccessTokenExpiry())
	})

	t.Run("invalid duration falls back", func(t *testing.T) {
		t.Setenv("HTTP_TIMEOUT", "soon")
		require.Equal(t, 30*time.Second, config.New().GetHTTPTimeout())
	})

	t.Run("store backend", func(t *testing.T) {
		t.Setenv("SESSION_STORE", "redis")
		require.Equal(t, config.StoreRedis, config.New().GetStoreBackend())
	})
}

func TestCors_AllowedOrigins(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://app.example.com, https://admin.example.com")
	origins := config.New().GetAllowedOrigins()
	require.True(t, origins.IsAllowedOrigin("https://app.example.com"))
	require.True(t, origins.IsAllowedOrigin("https://admin.example.com"))
	require.False(t, origins.IsAllowedOrigin("https://evil.example.com"))
}
