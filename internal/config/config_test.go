package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var keys = []string{"JWT_SECRET", "STORE_DRIVER", "DB_USER", "DB_NAME", "APP_PORT", "PLANNER_HORIZON", "LEDGER_LOCK_TTL", "LEDGER_GUARD_REPEAT_CONFIRM", "REDIS_DB", "DISPATCH_RETRY_DELAY", "DOSE_LINK_TTL", "DB_MAX_OPEN_CONNS", "DB_CONN_MAX_LIFETIME"}

// clearEnv unsets keys for the duration of the test.  envconfig treats a
// variable set to "" as present, which would bypass defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "America/Puerto_Rico", cfg.DefaultTimezone)
	assert.Equal(t, "dose.dispatch", cfg.DispatchQueue)
	assert.Equal(t, time.Second, cfg.DispatchPollInterval)
	assert.Equal(t, 30*time.Second, cfg.DispatchRetryDelay)
	assert.Equal(t, 72*time.Hour, cfg.DoseLinkTTL)
	assert.Equal(t, 25, cfg.DBMaxOpenConns)
	assert.Equal(t, 30*time.Minute, cfg.DBConnMaxLifetime)
	assert.Equal(t, "@every 5m", cfg.PlannerSpec)
	assert.Equal(t, 15*time.Minute, cfg.PlannerHorizon)
	assert.False(t, cfg.LedgerLockEnabled)
	assert.Equal(t, 5*time.Second, cfg.LedgerLockTTL)
	assert.False(t, cfg.LedgerGuardRepeatConfirm)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_NAME", "doses")
	t.Setenv("PLANNER_HORIZON", "30m")
	t.Setenv("LEDGER_GUARD_REPEAT_CONFIRM", "true")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.PlannerHorizon)
	assert.True(t, cfg.LedgerGuardRepeatConfirm)
	assert.Equal(t, 2, cfg.RedisDB)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":   {"STORE_DRIVER": "memory"},
		"empty secret":     {"JWT_SECRET": "", "STORE_DRIVER": "memory"},
		"unknown driver":   {"JWT_SECRET": "x", "STORE_DRIVER": "sqlite"},
		"mysql without db": {"JWT_SECRET": "x", "STORE_DRIVER": "mysql"},
		"zero horizon":     {"JWT_SECRET": "x", "STORE_DRIVER": "memory", "PLANNER_HORIZON": "0s"},
		"bad duration":     {"JWT_SECRET": "x", "STORE_DRIVER": "memory", "LEDGER_LOCK_TTL": "soon"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load(zap.NewNop())
			assert.Error(t, err)
		})
	}
}

func TestNewRedisClient_Disabled(t *testing.T) {
	c, err := NewRedisClient(t.Context(), Config{})
	require.NoError(t, err)
	assert.Nil(t, c)
}
