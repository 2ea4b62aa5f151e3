package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-guard/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()
	require.Equal(t, 30*time.Minute, cfg.Guard.InactivityTimeout())
	require.Equal(t, time.Minute, cfg.Guard.WarningThreshold())
	require.Equal(t, time.Second, cfg.Guard.PollInterval())
	require.Equal(t, time.Second, cfg.Guard.DebounceWindow())
	require.Equal(t, []time.Duration{0, 100 * time.Millisecond, 500 * time.Millisecond}, cfg.Delivery.RedeliverySchedule())
	require.Equal(t, 3*time.Second, cfg.Delivery.CleanupDelay())
	require.Equal(t, "file", cfg.Store.Backend)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, cfg.Guard.InactivityTimeout())
}

func TestLoadFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[guard]
inactivity_timeout_secs = 600
warning_threshold_secs = 30

[delivery]
redelivery_delays_ms = [0, 50]

[store]
backend = "sqlite"
path = "/tmp/guard.db"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, cfg.Guard.InactivityTimeout())
	require.Equal(t, 30*time.Second, cfg.Guard.WarningThreshold())
	require.Equal(t, []time.Duration{0, 50 * time.Millisecond}, cfg.Delivery.RedeliverySchedule())
	require.Equal(t, "sqlite", cfg.Store.Backend)
	require.Equal(t, "/tmp/guard.db", cfg.Store.Path)
}

func TestLoadMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("guard = ["), 0o600))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestValidationClamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[guard]
inactivity_timeout_secs = 5
warning_threshold_secs = 9999
debounce_window_ms = 1

[store]
backend = "carrier-pigeon"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 60, cfg.Guard.InactivityTimeoutSecs)
	require.Less(t, cfg.Guard.WarningThresholdSecs, cfg.Guard.InactivityTimeoutSecs)
	require.Equal(t, 50, cfg.Guard.DebounceWindowMS)
	require.Equal(t, "file", cfg.Store.Backend)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SESSIONGUARD_INACTIVITY_TIMEOUT_SECS", "900")
	t.Setenv("SESSIONGUARD_STORE_BACKEND", "sqlite")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, cfg.Guard.InactivityTimeout())
	require.Equal(t, "sqlite", cfg.Store.Backend)
}
