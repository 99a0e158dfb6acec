package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_USER", "portal")
	t.Setenv("DB_NAME", "portal")
	t.Setenv("BACKEND_URL", "http://backend.local:5000")
}

func TestFromEnv_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, "/test/", cfg.TestPathPrefix)
	assert.Equal(t, "/get-course-templates", cfg.Backend.TemplatesFetchPath)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 2*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, 15*time.Minute, cfg.SessionRetention)
}

func TestFromEnv_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("BACKEND_TIMEOUT", "30")
	t.Setenv("QUESTION_CACHE_TTL", "2m")
	t.Setenv("SESSION_IDLE_TIMEOUT", "45s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 45*time.Second, cfg.SessionIdleTimeout)
}

func TestFromEnv_MissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("BACKEND_URL", "")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BaseURL")
}

func TestFromEnv_AdminPasswordRequiredWithEmail(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_EMAIL", "admin@example.com")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AdminPassword")
}
