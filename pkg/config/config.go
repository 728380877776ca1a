package config

import "time"

// Config is the root configuration structure for tokencap.
// It contains all configuration sections for the gateway server, upstream
// providers, the usage ledger, estimation defaults, and telemetry.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and CORS.
	Server ServerConfig `yaml:"server"`

	// Upstreams contains configuration for the upstream LLM providers.
	// Keys are provider names ("openai", "anthropic").
	Upstreams map[string]UpstreamConfig `yaml:"upstreams"`

	// Database contains configuration for the usage ledger database.
	Database DatabaseConfig `yaml:"database"`

	// Defaults contains per-request fallback values: the project requests
	// are attributed to when they carry none, and the output-token estimate
	// used when a request sets no max_tokens and the model has no known
	// default.
	Defaults DefaultsConfig `yaml:"defaults"`

	// Pricing contains the pricing override file settings.
	Pricing PricingConfig `yaml:"pricing"`

	// Retention contains ledger retention and maintenance settings.
	Retention RetentionConfig `yaml:"retention"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the gateway HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port for the gateway to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8790", "0.0.0.0:8790").
	// Default: "127.0.0.1:8790"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means no timeout.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Zero means no timeout, which is the default: streaming
	// responses are open-ended and must not be cut off by the server.
	// Default: 0
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled. If IdleTimeout is zero, ReadTimeout is used.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// If requests are still in-flight after this timeout, the server will
	// force shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AdminTimeout is the context deadline applied to admin endpoints
	// (budget, usage, pricing). Forwarding endpoints are not subject to it.
	// Default: 10s
	AdminTimeout time.Duration `yaml:"admin_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS is enabled.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins for CORS requests.
	// Use ["*"] to allow all origins (not recommended for production).
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods for CORS requests.
	// Default: ["GET", "POST", "DELETE", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed HTTP headers for CORS requests.
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders is a list of headers that are exposed to the client.
	// Default: the X-Tokencap-* cost and estimate headers.
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the maximum age (in seconds) for preflight request cache.
	// Default: 3600 (1 hour)
	MaxAge int `yaml:"max_age"`

	// AllowCredentials controls whether credentials (cookies, auth headers)
	// are allowed in CORS requests.
	// Default: false
	AllowCredentials bool `yaml:"allow_credentials"`
}

// UpstreamConfig contains configuration for a single upstream provider.
type UpstreamConfig struct {
	// BaseURL is the base URL for the provider's API.
	// Example: "https://api.openai.com"
	BaseURL string `yaml:"base_url"`

	// APIKey is the default credential used when an inbound request carries
	// none of its own. Typically loaded from an environment variable.
	// Empty means callers must supply their own keys.
	APIKey string `yaml:"api_key"`

	// Timeout is the maximum duration for a buffered exchange with this
	// upstream, request through body. Streaming responses are not subject
	// to it; they are bounded by IdleReadTimeout between chunks instead.
	// Default: 5m
	Timeout time.Duration `yaml:"timeout"`

	// ConnectTimeout bounds dialing the upstream.
	// Default: 30s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// IdleReadTimeout is the longest a streaming response may go without
	// delivering bytes before the gateway cuts it off.
	// Default: 90s
	IdleReadTimeout time.Duration `yaml:"idle_read_timeout"`

	// MaxIdleConns caps the connection pool across all hosts.
	// Default: 100
	MaxIdleConns int `yaml:"max_idle_conns"`

	// MaxIdleConnsPerHost caps idle connections kept per upstream host.
	// Default: 10
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// IdleConnTimeout is how long an idle connection stays pooled.
	// Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// DatabaseConfig contains configuration for the ledger database.
type DatabaseConfig struct {
	// Path is the SQLite database file path. The file and its parent
	// directory are created on first open.
	// Default: "./tokencap.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle database connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// BusyTimeout is how long a write waits on a locked database before
	// failing.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// DefaultsConfig contains per-request fallback values.
type DefaultsConfig struct {
	// ProjectID is the project requests are attributed to when they carry
	// no X-Tokencap-Project-Id header and no project_id query parameter.
	// Default: "default"
	ProjectID string `yaml:"project_id"`

	// OutputTokens is the output-token estimate used when a request sets no
	// max_tokens and the model's default maximum is unknown. Estimates from
	// this value carry low confidence.
	// Default: 4096
	OutputTokens int `yaml:"output_tokens"`
}

// PricingConfig contains the pricing override file settings.
type PricingConfig struct {
	// OverridesPath is an optional YAML file of pricing rows, aliases,
	// prefix rules, and a fallback row that are merged over the built-in
	// catalog at startup. Empty disables overrides.
	OverridesPath string `yaml:"overrides_path"`

	// Watch enables hot reloading of the overrides file on change.
	// Default: false
	Watch bool `yaml:"watch"`
}

// RetentionConfig contains ledger retention and maintenance settings.
type RetentionConfig struct {
	// Days is how long usage records are kept. Zero disables pruning;
	// budgets and their spend counters are never pruned.
	// Default: 90
	Days int `yaml:"days"`

	// Schedule is a cron expression (standard 5-field) for the maintenance
	// job that prunes old records and logs expired budget periods.
	// Default: "0 3 * * *" (daily at 03:00)
	Schedule string `yaml:"schedule"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactKeys enables automatic redaction of API keys and bearer tokens
	// in log output.
	// Default: true
	RedactKeys bool `yaml:"redact_keys"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "tokencap"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name. Empty by default so metric
	// names read tokencap_requests_total rather than tokencap_x_requests_total.
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets defines histogram buckets for request duration (seconds).
	// Default: [0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`

	// TokenCountBuckets defines histogram buckets for per-request token counts.
	// Default: [100, 500, 1000, 5000, 10000, 50000, 100000]
	TokenCountBuckets []float64 `yaml:"token_count_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Only used when Sampler is "ratio".
	// Default: 0.1 (10%)
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "tokencap"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the OTLP connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// ExportTimeout is the timeout for OTLP exports.
	// Default: 10s
	ExportTimeout time.Duration `yaml:"export_timeout"`
}
