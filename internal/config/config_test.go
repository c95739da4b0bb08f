package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://test@localhost/test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, LockBackendMemory, cfg.LockBackend)
	assert.Equal(t, 5*time.Second, cfg.SettlementTimeout)
	assert.Equal(t, "@every 1m", cfg.SweepSchedule)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, "@hourly", cfg.IdempotencyPurgeSchedule)
	assert.True(t, cfg.DefaultDailyLimit.Equal(decimal.NewFromInt(5000)))
	assert.True(t, cfg.LimitDefaults().PerTransactionMin.Equal(decimal.RequireFromString("0.01")))
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing database url", env: map[string]string{"DATABASE_URL": ""}},
		{name: "redis backend without url", env: map[string]string{"LOCK_BACKEND": "redis"}},
		{name: "unknown backend", env: map[string]string{"LOCK_BACKEND": "etcd"}},
		{name: "zero concurrency", env: map[string]string{"SWEEP_CONCURRENCY": "0"}},
		{name: "min above max", env: map[string]string{"DEFAULT_PER_TX_MIN": "10", "DEFAULT_PER_TX_MAX": "5"}},
		{name: "lock ttl shorter than settlement timeout", env: map[string]string{"LOCK_TTL": "5s", "SETTLEMENT_TIMEOUT": "10s"}},
		{name: "non-positive idempotency ttl", env: map[string]string{"IDEMPOTENCY_TTL": "0s"}},
		{name: "bad decimal", env: map[string]string{"DEFAULT_DAILY_LIMIT": "lots"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://test@localhost/test")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
		})
	}
}
