package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "Eventos.csv", cfg.EventsPath)
	assert.Equal(t, "Parqueos.csv", cfg.LotsPath)
	assert.Equal(t, "csv", cfg.Backend)
	assert.Equal(t, 4*time.Second, cfg.LockTimeout)
	assert.Equal(t, 80*time.Millisecond, cfg.LockRetry)
	assert.Zero(t, cfg.LockStaleAfter)
	assert.Equal(t, LockFile, cfg.LockBackend)
	assert.Equal(t, "lotledger.events", cfg.AMQPQueue)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, "cli", cfg.Source)
	assert.Equal(t, "v2", cfg.AppVersion)
	assert.Equal(t, "Eventos.csv.lock", cfg.LockFilePath())
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"LOTLEDGER_EVENTS":           "/data/events.db",
		"LOTLEDGER_BACKEND":          "sqlite",
		"LOTLEDGER_LOCK_FILE":        "/data/.parqueos.lock",
		"LOTLEDGER_LOCK_TIMEOUT":     "10s",
		"LOTLEDGER_LOCK_STALE_AFTER": "2m",
		"LOTLEDGER_SWEEP_INTERVAL":   "30s",
	})

	require.NoError(t, err)
	assert.Equal(t, "/data/events.db", cfg.EventsPath)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, "/data/.parqueos.lock", cfg.LockFilePath())
	assert.Equal(t, 10*time.Second, cfg.LockTimeout)
	assert.Equal(t, 2*time.Minute, cfg.LockStaleAfter)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{
			name: "unknown backend",
			vars: map[string]string{"LOTLEDGER_BACKEND": "parquet"},
			want: "LOTLEDGER_BACKEND",
		},
		{
			name: "redis without url",
			vars: map[string]string{"LOTLEDGER_LOCK_BACKEND": "redis"},
			want: "LOTLEDGER_REDIS_URL",
		},
		{
			name: "unknown lock backend",
			vars: map[string]string{"LOTLEDGER_LOCK_BACKEND": "etcd"},
			want: "unknown lock backend",
		},
		{
			name: "zero timeout",
			vars: map[string]string{"LOTLEDGER_LOCK_TIMEOUT": "0s"},
			want: "LOTLEDGER_LOCK_TIMEOUT",
		},
		{
			name: "malformed duration",
			vars: map[string]string{"LOTLEDGER_SWEEP_INTERVAL": "often"},
			want: "parse env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.vars)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
