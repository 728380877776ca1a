package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention TOKENCAP_SECTION_FIELD (e.g., TOKENCAP_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// If path is empty, the defaults plus environment overrides are used, so the
// gateway runs with no configuration file at all.
//
// The loading sequence is:
// 1. Load YAML from file (or start from defaults when path is empty)
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = DefaultConfig()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format TOKENCAP_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	if val := os.Getenv("TOKENCAP_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("TOKENCAP_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("TOKENCAP_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if val := os.Getenv("TOKENCAP_SERVER_IDLE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.IdleTimeout = d
		}
	}
	if val := os.Getenv("TOKENCAP_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}

	// Upstream overrides, including the conventional provider key variables.
	for _, name := range UpstreamNames {
		applyUpstreamEnvOverrides(cfg, name)
	}

	// Database overrides
	if val := os.Getenv("TOKENCAP_DATABASE_PATH"); val != "" {
		cfg.Database.Path = val
	}
	if val := os.Getenv("TOKENCAP_DATABASE_BUSY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Database.BusyTimeout = d
		}
	}

	// Request default overrides
	if val := os.Getenv("TOKENCAP_DEFAULTS_PROJECT_ID"); val != "" {
		cfg.Defaults.ProjectID = val
	}
	if val := os.Getenv("TOKENCAP_DEFAULTS_OUTPUT_TOKENS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Defaults.OutputTokens = i
		}
	}

	// Pricing overrides
	if val := os.Getenv("TOKENCAP_PRICING_OVERRIDES_PATH"); val != "" {
		cfg.Pricing.OverridesPath = val
	}
	if val := os.Getenv("TOKENCAP_PRICING_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Pricing.Watch = b
		}
	}

	// Retention overrides
	if val := os.Getenv("TOKENCAP_RETENTION_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Retention.Days = i
		}
	}
	if val := os.Getenv("TOKENCAP_RETENTION_SCHEDULE"); val != "" {
		cfg.Retention.Schedule = val
	}

	// Telemetry overrides
	if val := os.Getenv("TOKENCAP_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("TOKENCAP_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("TOKENCAP_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("TOKENCAP_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}
	if val := os.Getenv("TOKENCAP_TELEMETRY_TRACING_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Tracing.Enabled = b
		}
	}
	if val := os.Getenv("TOKENCAP_TELEMETRY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}
	if val := os.Getenv("TOKENCAP_TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

// applyUpstreamEnvOverrides applies environment variable overrides for one
// upstream. Variables follow TOKENCAP_UPSTREAMS_<NAME>_<FIELD>; for API keys
// the provider's conventional variable (OPENAI_API_KEY, ANTHROPIC_API_KEY)
// is honored as a fallback so existing shell setups work unchanged.
func applyUpstreamEnvOverrides(cfg *Config, name string) {
	if cfg.Upstreams == nil {
		cfg.Upstreams = make(map[string]UpstreamConfig)
	}
	up := cfg.Upstreams[name]

	prefix := fmt.Sprintf("TOKENCAP_UPSTREAMS_%s_", strings.ToUpper(name))

	if val := os.Getenv(prefix + "BASE_URL"); val != "" {
		up.BaseURL = val
	}
	if val := os.Getenv(prefix + "API_KEY"); val != "" {
		up.APIKey = val
	} else if up.APIKey == "" {
		if val := os.Getenv(strings.ToUpper(name) + "_API_KEY"); val != "" {
			up.APIKey = val
		}
	}
	if val := os.Getenv(prefix + "TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			up.Timeout = d
		}
	}
	if val := os.Getenv(prefix + "CONNECT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			up.ConnectTimeout = d
		}
	}
	if val := os.Getenv(prefix + "IDLE_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			up.IdleReadTimeout = d
		}
	}

	cfg.Upstreams[name] = up
}
