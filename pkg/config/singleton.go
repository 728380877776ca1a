package config

import (
	"fmt"
	"sync"
)

// The process-wide configuration. Guarded by mu; written once by
// Initialize and thereafter only by ReloadConfig or SetConfig.
var (
	mu      sync.RWMutex
	current *Config
	once    sync.Once
)

// Initialize loads configuration from path (empty means defaults plus
// environment overrides) and installs it as the process-wide instance.
// Only the first call does anything; later calls return nil without
// reloading.
func Initialize(path string) error {
	var initErr error
	once.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}
		mu.Lock()
		current = cfg
		mu.Unlock()
	})
	return initErr
}

// GetConfig returns the installed configuration, nil before a successful
// Initialize. Safe for concurrent use. Code under test should take a
// *Config directly instead of reading the singleton.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// MustGetConfig is GetConfig for paths that run strictly after startup;
// it panics when no configuration is installed.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}

// SetConfig installs cfg directly, bypassing loading and validation.
// Test helper; production startup goes through Initialize.
func SetConfig(cfg *Config) {
	mu.Lock()
	current = cfg
	mu.Unlock()
}

// ReloadConfig reloads from path and swaps the installed instance. A load
// or validation failure leaves the previous configuration in place.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	mu.Lock()
	current = cfg
	mu.Unlock()
	return nil
}
