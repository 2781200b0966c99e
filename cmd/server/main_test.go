package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/trails-backend-go/internal/config"
)

func TestRunStopsOnSignal(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Port:            "127.0.0.1:0",
		PrimaryDriver:   config.DriverSQLite,
		DBPath:          filepath.Join(dir, "trails.db"),
		OfflineBackend:  "badger",
		OfflinePath:     filepath.Join(dir, "offline"),
		DeviceID:        "test",
		SnapshotEvery:   10,
		GatewayAttempts: 1,
		SyncInterval:    time.Hour,
	}

	signals := make(chan os.Signal, 1)
	signals <- os.Interrupt

	require.NoError(t, run(context.Background(), cfg, signals))
}

func TestRunFailsOnBadConfig(t *testing.T) {
	cfg := &config.Config{
		PrimaryDriver:  config.DriverSQLite,
		DBPath:         filepath.Join(t.TempDir(), "trails.db"),
		OfflineBackend: "badger",
		OfflinePath:    filepath.Join(t.TempDir(), "offline"),
		RedisAddr:      "127.0.0.1:1",
	}

	err := run(context.Background(), cfg, make(chan os.Signal))
	assert.Error(t, err)
}
