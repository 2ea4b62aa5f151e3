// Package config provides configuration loading for the session guard.
//
// Values come from a TOML file with environment variable overrides on top,
// falling back to built-in defaults. The policy constants here (debounce
// window, inactivity timeout, warning threshold) are deliberately
// configuration rather than code: they are product choices, not protocol
// requirements.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is the complete session guard configuration.
type Config struct {
	Guard    GuardConfig    `toml:"guard"`
	Delivery DeliveryConfig `toml:"delivery"`
	Store    StoreConfig    `toml:"store"`
	Relay    RelayConfig    `toml:"relay"`
}

// GuardConfig carries the user-facing timeout policy.
type GuardConfig struct {
	// InactivityTimeoutSecs is how long a session may go without a
	// qualifying interaction signal before it expires. Clamped to
	// [60, 86400].
	InactivityTimeoutSecs int `toml:"inactivity_timeout_secs"`
	// WarningThresholdSecs is how far before expiry the countdown warning
	// is raised. Clamped below the inactivity timeout.
	WarningThresholdSecs int `toml:"warning_threshold_secs"`
	// PollIntervalMS is the countdown sampling cadence.
	PollIntervalMS int `toml:"poll_interval_ms"`
	// DebounceWindowMS is the minimum interval between accepted activity
	// signals. Signal storms inside the window are dropped.
	DebounceWindowMS int `toml:"debounce_window_ms"`
}

// DeliveryConfig carries the reliability-engineering constants of the login
// broadcast. These are not user-facing semantics.
type DeliveryConfig struct {
	// RedeliveryDelaysMS schedules repeated channel posts of one login
	// event so late-registering listeners still observe a copy.
	RedeliveryDelaysMS []int `toml:"redelivery_delays_ms"`
	// CleanupDelaySecs is how long timestamp-suffixed login keys stay in
	// the store before removal.
	CleanupDelaySecs int `toml:"cleanup_delay_secs"`
}

// StoreConfig selects the shared store backend.
type StoreConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `toml:"backend"`
	// Path is the backing file or database path. Empty means a file under
	// the user's home directory.
	Path string `toml:"path"`
	// SQLitePollMS is the changelog poll cadence for the sqlite backend.
	SQLitePollMS int `toml:"sqlite_poll_ms"`
}

// RelayConfig configures the websocket relay used as the broadcast channel.
type RelayConfig struct {
	// ListenAddr is the relay server bind address.
	ListenAddr string `toml:"listen_addr"`
	// URL is the relay endpoint clients dial. Empty disables the channel
	// and delivery degrades to store-only.
	URL string `toml:"url"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Guard: GuardConfig{
			InactivityTimeoutSecs: 30 * 60,
			WarningThresholdSecs:  60,
			PollIntervalMS:        1000,
			DebounceWindowMS:      1000,
		},
		Delivery: DeliveryConfig{
			RedeliveryDelaysMS: []int{0, 100, 500},
			CleanupDelaySecs:   3,
		},
		Store: StoreConfig{
			Backend:      "file",
			Path:         "",
			SQLitePollMS: 250,
		},
		Relay: RelayConfig{
			ListenAddr: ":8090",
			URL:        "",
		},
	}
}

// Load reads the configuration from path, or from
// ~/.sessionguard/config.toml when path is empty. A missing file is not an
// error; defaults apply. Environment overrides and validation run in both
// cases.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".sessionguard", "config.toml")
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, errors.Wrap(err, "[config.Load] decoding "+path)
			}
		}
	}

	cfg.applyEnv()
	cfg.validate()
	return cfg, nil
}

func (c *Config) validate() {
	if c.Guard.InactivityTimeoutSecs < 60 {
		c.Guard.InactivityTimeoutSecs = 60
	}
	if c.Guard.InactivityTimeoutSecs > 86400 {
		c.Guard.InactivityTimeoutSecs = 86400
	}
	if c.Guard.WarningThresholdSecs < 1 {
		c.Guard.WarningThresholdSecs = 1
	}
	if c.Guard.WarningThresholdSecs >= c.Guard.InactivityTimeoutSecs {
		c.Guard.WarningThresholdSecs = c.Guard.InactivityTimeoutSecs / 2
	}
	if c.Guard.PollIntervalMS < 100 {
		c.Guard.PollIntervalMS = 100
	}
	if c.Guard.DebounceWindowMS < 50 {
		c.Guard.DebounceWindowMS = 50
	}
	if len(c.Delivery.RedeliveryDelaysMS) == 0 {
		c.Delivery.RedeliveryDelaysMS = []int{0}
	}
	if c.Delivery.CleanupDelaySecs < 1 {
		c.Delivery.CleanupDelaySecs = 1
	}
	if c.Store.Backend != "sqlite" {
		c.Store.Backend = "file"
	}
	if c.Store.SQLitePollMS < 50 {
		c.Store.SQLitePollMS = 50
	}
}

// InactivityTimeout returns the guard timeout as a duration.
func (g GuardConfig) InactivityTimeout() time.Duration {
	return time.Duration(g.InactivityTimeoutSecs) * time.Second
}

// WarningThreshold returns the warning threshold as a duration.
func (g GuardConfig) WarningThreshold() time.Duration {
	return time.Duration(g.WarningThresholdSecs) * time.Second
}

// PollInterval returns the countdown poll cadence as a duration.
func (g GuardConfig) PollInterval() time.Duration {
	return time.Duration(g.PollIntervalMS) * time.Millisecond
}

// DebounceWindow returns the activity debounce window as a duration.
func (g GuardConfig) DebounceWindow() time.Duration {
	return time.Duration(g.DebounceWindowMS) * time.Millisecond
}

// RedeliverySchedule returns the channel redelivery delays as durations.
func (d DeliveryConfig) RedeliverySchedule() []time.Duration {
	out := make([]time.Duration, 0, len(d.RedeliveryDelaysMS))
	for _, ms := range d.RedeliveryDelaysMS {
		out = append(out, time.Duration(ms)*time.Millisecond)
	}
	return out
}

// CleanupDelay returns the timestamped-key cleanup delay as a duration.
func (d DeliveryConfig) CleanupDelay() time.Duration {
	return time.Duration(d.CleanupDelaySecs) * time.Second
}

// SQLitePoll returns the sqlite changelog poll cadence as a duration.
func (s StoreConfig) SQLitePoll() time.Duration {
	return time.Duration(s.SQLitePollMS) * time.Millisecond
}
