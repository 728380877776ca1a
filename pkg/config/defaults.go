package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8790"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 0 * time.Second // streams are open-ended
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultAdminTimeout    = 10 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// CORS defaults
	DefaultCORSEnabled          = true
	DefaultCORSMaxAge           = 3600 // 1 hour
	DefaultCORSAllowCredentials = false

	// Upstream defaults. The total timeout applies to buffered exchanges
	// only; streams are bounded per chunk by the idle-read timeout.
	DefaultUpstreamTimeout             = 5 * time.Minute
	DefaultUpstreamConnectTimeout      = 30 * time.Second
	DefaultUpstreamIdleReadTimeout     = 90 * time.Second
	DefaultUpstreamMaxIdleConns        = 100
	DefaultUpstreamMaxIdleConnsPerHost = 10
	DefaultUpstreamIdleConnTimeout     = 90 * time.Second
	DefaultOpenAIBaseURL               = "https://api.openai.com"
	DefaultAnthropicBaseURL            = "https://api.anthropic.com"

	// Database defaults
	DefaultDatabasePath         = "./tokencap.db"
	DefaultDatabaseMaxOpenConns = 10
	DefaultDatabaseMaxIdleConns = 5
	DefaultDatabaseBusyTimeout  = 5 * time.Second

	// Request defaults
	DefaultProjectID    = "default"
	DefaultOutputTokens = 4096

	// Retention defaults
	DefaultRetentionDays     = 90
	DefaultRetentionSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel    = "info"
	DefaultLoggingFormat   = "json"
	DefaultMetricsEnabled  = true
	DefaultPrometheusPath  = "/metrics"
	DefaultMetricNamespace = "tokencap"
	DefaultTracingEnabled  = false
	DefaultTracingSampler  = "ratio"
	DefaultTracingRatio    = 0.1
	DefaultTracingService  = "tokencap"
	DefaultTracingTimeout  = 10 * time.Second
)

// UpstreamNames lists the providers the gateway knows how to adapt.
var UpstreamNames = []string{"openai", "anthropic"}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.AdminTimeout == 0 {
		cfg.Server.AdminTimeout = DefaultAdminTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	applyCORSDefaults(&cfg.Server.CORS)

	// Upstream defaults - both known upstreams exist even when the file
	// names neither, so env-only configuration works.
	if cfg.Upstreams == nil {
		cfg.Upstreams = make(map[string]UpstreamConfig)
	}
	for _, name := range UpstreamNames {
		up := cfg.Upstreams[name]
		if up.BaseURL == "" {
			switch name {
			case "openai":
				up.BaseURL = DefaultOpenAIBaseURL
			case "anthropic":
				up.BaseURL = DefaultAnthropicBaseURL
			}
		}
		if up.Timeout == 0 {
			up.Timeout = DefaultUpstreamTimeout
		}
		if up.ConnectTimeout == 0 {
			up.ConnectTimeout = DefaultUpstreamConnectTimeout
		}
		if up.IdleReadTimeout == 0 {
			up.IdleReadTimeout = DefaultUpstreamIdleReadTimeout
		}
		if up.MaxIdleConns == 0 {
			up.MaxIdleConns = DefaultUpstreamMaxIdleConns
		}
		if up.MaxIdleConnsPerHost == 0 {
			up.MaxIdleConnsPerHost = DefaultUpstreamMaxIdleConnsPerHost
		}
		if up.IdleConnTimeout == 0 {
			up.IdleConnTimeout = DefaultUpstreamIdleConnTimeout
		}
		cfg.Upstreams[name] = up
	}

	// Database defaults
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDatabaseMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultDatabaseMaxIdleConns
	}
	if cfg.Database.BusyTimeout == 0 {
		cfg.Database.BusyTimeout = DefaultDatabaseBusyTimeout
	}

	// Request defaults
	if cfg.Defaults.ProjectID == "" {
		cfg.Defaults.ProjectID = DefaultProjectID
	}
	if cfg.Defaults.OutputTokens == 0 {
		cfg.Defaults.OutputTokens = DefaultOutputTokens
	}

	// Retention defaults
	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = DefaultRetentionDays
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = DefaultRetentionSchedule
	}

	// Logging defaults. RedactKeys defaults to true; a bool zero value is
	// indistinguishable from "unset", so an untouched logging section (no
	// level) implies the user never opted out of redaction.
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
		cfg.Telemetry.Logging.RedactKeys = true
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}

	// Metrics defaults. Same bool treatment: an untouched metrics section
	// (no path) gets the enabled default.
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricNamespace
	}
	if len(cfg.Telemetry.Metrics.RequestDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RequestDurationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0}
	}
	if len(cfg.Telemetry.Metrics.TokenCountBuckets) == 0 {
		cfg.Telemetry.Metrics.TokenCountBuckets = []float64{100, 500, 1000, 5000, 10000, 50000, 100000}
	}

	// Tracing defaults
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingRatio
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Telemetry.Tracing.ExportTimeout == 0 {
		cfg.Telemetry.Tracing.ExportTimeout = DefaultTracingTimeout
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Insecure = true
	}
}

// applyCORSDefaults applies default values to CORS configuration.
func applyCORSDefaults(cors *CORSConfig) {
	if !cors.Enabled {
		// A section with no fields set was never touched by the user, so
		// the enabled default applies. Any explicit field means the user
		// configured CORS and enabled=false is taken at face value.
		hasAnyConfig := len(cors.AllowedOrigins) > 0 ||
			len(cors.AllowedMethods) > 0 ||
			len(cors.AllowedHeaders) > 0 ||
			len(cors.ExposedHeaders) > 0 ||
			cors.MaxAge > 0

		if !hasAnyConfig {
			cors.Enabled = DefaultCORSEnabled
		}
	}

	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}

// DefaultConfig returns a Config with all defaults applied, suitable for
// running without a configuration file.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
