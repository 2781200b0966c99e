package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.PrimaryDriver)
	assert.Equal(t, "badger", cfg.OfflineBackend)
	assert.Equal(t, 10, cfg.SnapshotEvery)
	assert.Equal(t, 3, cfg.GatewayAttempts)
	assert.Equal(t, time.Second, cfg.SyncBackoffBase)
	assert.Equal(t, 5*time.Minute, cfg.SyncBackoffMax)
	assert.Empty(t, cfg.JWTSecret)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TRAILS_PORT", ":9090")
	t.Setenv("TRAILS_SNAPSHOT_EVERY", "25")
	t.Setenv("TRAILS_SYNC_INTERVAL", "30s")
	t.Setenv("TRAILS_PRIMARY_DRIVER", "POSTGRES")
	t.Setenv("TRAILS_POSTGRES_URL", "postgres://localhost/trails")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, 25, cfg.SnapshotEvery)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.Equal(t, DriverPostgres, cfg.PrimaryDriver)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("DEVICE_ID: phone-1\nGATEWAY_RETRY_DELAY: 1s\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "phone-1", cfg.DeviceID)
	assert.Equal(t, time.Second, cfg.GatewayRetryDelay)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"TRAILS_PRIMARY_DRIVER": "postgres"}},
		{"unknown driver", map[string]string{"TRAILS_PRIMARY_DRIVER": "mysql"}},
		{"redis without addr", map[string]string{"TRAILS_OFFLINE_BACKEND": "redis"}},
		{"unknown backend", map[string]string{"TRAILS_OFFLINE_BACKEND": "files"}},
		{"zero snapshot cadence", map[string]string{"TRAILS_SNAPSHOT_EVERY": "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
