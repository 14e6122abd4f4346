package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("APP_PORT", "")
	t.Setenv("RECLAMOS_API_TIMEOUT_MS", "")
	t.Setenv("SYNC_MAX_ATTEMPTS", "")
	t.Setenv("NOTIFY_RECLAIM_INTERVAL_SECONDS", "")
	t.Setenv("NOTIFY_CLAIM_MIN_IDLE_SECONDS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 5*time.Second, cfg.Reclamos.Timeout())
	assert.Equal(t, "es_AR", cfg.WhatsApp.LanguageCode)
	assert.Equal(t, "54", cfg.Notification.CountryCode)
	assert.Equal(t, "reclamo_asignado", cfg.Notification.TemplateAssigned)
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Equal(t, 10, cfg.Sync.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Notification.ReclaimInterval())
	assert.Equal(t, time.Minute, cfg.Notification.ClaimMinIdle())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("RECLAMOS_API_TIMEOUT_MS", "1500")
	t.Setenv("NOTIFY_QUEUE_ENABLED", "true")
	t.Setenv("SYNC_RETRY_INTERVAL_SECONDS", "0")
	t.Setenv("POSTGRES_MAX_CONNS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, 1500*time.Millisecond, cfg.Reclamos.Timeout())
	assert.True(t, cfg.Notification.QueueEnabled)
	assert.Zero(t, cfg.Sync.RetryInterval())
	assert.EqualValues(t, 10, cfg.Postgres.MaxConns)
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "one")
	_, err := Load()
	assert.Error(t, err)
}
