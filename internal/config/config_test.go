package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WORKFLOW_EARLY_CLOSURE_HOURS", "")
	t.Setenv("POSTGRES_DSN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, cfg.Workflow.EarlyClosureWindow())
	assert.Empty(t, cfg.Postgres.DSN)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 100, cfg.Notification.QueueSize)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WORKFLOW_EARLY_CLOSURE_HOURS", "12")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_HOST", "127.0.0.1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12*time.Hour, cfg.Workflow.EarlyClosureWindow())
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "127.0.0.1:9090", cfg.App.Addr())
}

func TestLoadRejectsNonPositiveClosureWindow(t *testing.T) {
	t.Setenv("WORKFLOW_EARLY_CLOSURE_HOURS", "-1")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "one")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadCollectsEveryProblem(t *testing.T) {
	t.Setenv("NOTIFY_QUEUE_SIZE", "0")
	t.Setenv("LOG_ENCODING", "xml")
	t.Setenv("POSTGRES_MIN_CONNS", "20")
	t.Setenv("POSTGRES_MAX_CONNS", "5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTIFY_QUEUE_SIZE")
	assert.Contains(t, err.Error(), "LOG_ENCODING")
	assert.Contains(t, err.Error(), "POSTGRES_MIN_CONNS")
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_JWT_SECRET", "")
	_, err := Load()
	assert.ErrorContains(t, err, "AUTH_JWT_SECRET")

	t.Setenv("AUTH_JWT_SECRET", "a-real-secret")
	_, err = Load()
	assert.NoError(t, err)
}
