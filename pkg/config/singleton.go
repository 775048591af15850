package config

import (
	"fmt"
	"sync"
)

var (
	globalMu   sync.RWMutex
	globalCfg  *Config
	globalPath string
	initOnce   sync.Once
)

// Initialize loads the configuration at path with KATE_ overrides and
// installs it as the process configuration. Only the first call loads;
// later calls return nil without reading the file.
func Initialize(path string) error {
	var initErr error
	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}
		globalMu.Lock()
		globalCfg, globalPath = cfg, path
		globalMu.Unlock()
	})
	return initErr
}

// GetConfig returns the process configuration, or nil before Initialize.
// Components should receive their section explicitly; this accessor is for
// the CLI and the admin API.
func GetConfig() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalCfg
}

// SetConfig replaces the process configuration. Intended for tests.
func SetConfig(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalCfg = cfg
}

// ReloadConfig re-reads path, or the path given to Initialize when empty.
// The current configuration is kept when the new one fails to load.
func ReloadConfig(path string) error {
	globalMu.RLock()
	if path == "" {
		path = globalPath
	}
	globalMu.RUnlock()

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	globalMu.Lock()
	globalCfg, globalPath = cfg, path
	globalMu.Unlock()
	return nil
}

// MustGetConfig is GetConfig that panics before Initialize.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}
