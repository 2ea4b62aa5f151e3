package config

import (
	"os"
	"strconv"
)

const (
	timeoutEnvVar      = "SESSIONGUARD_INACTIVITY_TIMEOUT_SECS"
	warningEnvVar      = "SESSIONGUARD_WARNING_THRESHOLD_SECS"
	debounceEnvVar     = "SESSIONGUARD_DEBOUNCE_WINDOW_MS"
	storeBackendEnvVar = "SESSIONGUARD_STORE_BACKEND"
	storePathEnvVar    = "SESSIONGUARD_STORE_PATH"
	relayURLEnvVar     = "SESSIONGUARD_RELAY_URL"
	relayListenEnvVar  = "SESSIONGUARD_RELAY_LISTEN"
)

// applyEnv layers environment variable overrides over the loaded file.
func (c *Config) applyEnv() {
	c.Guard.InactivityTimeoutSecs = getEnvInt(timeoutEnvVar, c.Guard.InactivityTimeoutSecs)
	c.Guard.WarningThresholdSecs = getEnvInt(warningEnvVar, c.Guard.WarningThresholdSecs)
	c.Guard.DebounceWindowMS = getEnvInt(debounceEnvVar, c.Guard.DebounceWindowMS)
	c.Store.Backend = GetEnv(storeBackendEnvVar, c.Store.Backend)
	c.Store.Path = GetEnv(storePathEnvVar, c.Store.Path)
	c.Relay.URL = GetEnv(relayURLEnvVar, c.Relay.URL)
	c.Relay.ListenAddr = GetEnv(relayListenEnvVar, c.Relay.ListenAddr)
}

// GetEnv returns the value of envVar, or defaultValue when unset or empty.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
