package config

import "time"

// ConfigBuilder provides a fluent API for building Config instances in tests.
// It starts with default values and allows selective overrides.
type ConfigBuilder struct {
	cfg Config
}

// NewTestConfig creates a new ConfigBuilder with sensible defaults for testing.
// The resulting configuration is valid and can be used immediately.
func NewTestConfig() *ConfigBuilder {
	cfg := Config{
		Upstreams: make(map[string]UpstreamConfig),
	}
	ApplyDefaults(&cfg)

	// Give the default upstream a key so credential-dependent paths work.
	up := cfg.Upstreams["openai"]
	up.APIKey = "test-key"
	cfg.Upstreams["openai"] = up

	return &ConfigBuilder{cfg: cfg}
}

// Build returns the built Config instance.
func (b *ConfigBuilder) Build() *Config {
	return &b.cfg
}

// WithListenAddress sets the server listen address.
func (b *ConfigBuilder) WithListenAddress(addr string) *ConfigBuilder {
	b.cfg.Server.ListenAddress = addr
	return b
}

// WithReadTimeout sets the server read timeout.
func (b *ConfigBuilder) WithReadTimeout(d time.Duration) *ConfigBuilder {
	b.cfg.Server.ReadTimeout = d
	return b
}

// WithUpstream adds or updates an upstream configuration.
func (b *ConfigBuilder) WithUpstream(name string, up UpstreamConfig) *ConfigBuilder {
	if b.cfg.Upstreams == nil {
		b.cfg.Upstreams = make(map[string]UpstreamConfig)
	}
	b.cfg.Upstreams[name] = up
	return b
}

// WithDatabasePath sets the ledger database path.
func (b *ConfigBuilder) WithDatabasePath(path string) *ConfigBuilder {
	b.cfg.Database.Path = path
	return b
}

// WithDefaultProject sets the fallback project id.
func (b *ConfigBuilder) WithDefaultProject(id string) *ConfigBuilder {
	b.cfg.Defaults.ProjectID = id
	return b
}

// WithDefaultOutputTokens sets the low-confidence output token fallback.
func (b *ConfigBuilder) WithDefaultOutputTokens(n int) *ConfigBuilder {
	b.cfg.Defaults.OutputTokens = n
	return b
}

// WithPricingOverrides sets the pricing overrides file path.
func (b *ConfigBuilder) WithPricingOverrides(path string, watch bool) *ConfigBuilder {
	b.cfg.Pricing.OverridesPath = path
	b.cfg.Pricing.Watch = watch
	return b
}

// WithRetention sets the ledger retention window and schedule.
func (b *ConfigBuilder) WithRetention(days int, schedule string) *ConfigBuilder {
	b.cfg.Retention.Days = days
	b.cfg.Retention.Schedule = schedule
	return b
}

// WithLoggingLevel sets the logging level.
func (b *ConfigBuilder) WithLoggingLevel(level string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Level = level
	return b
}

// WithLoggingFormat sets the logging format.
func (b *ConfigBuilder) WithLoggingFormat(format string) *ConfigBuilder {
	b.cfg.Telemetry.Logging.Format = format
	return b
}

// WithMetricsEnabled sets whether metrics are enabled.
func (b *ConfigBuilder) WithMetricsEnabled(enabled bool) *ConfigBuilder {
	b.cfg.Telemetry.Metrics.Enabled = enabled
	return b
}

// WithTracingEnabled sets whether tracing is enabled.
func (b *ConfigBuilder) WithTracingEnabled(enabled bool, endpoint string) *ConfigBuilder {
	b.cfg.Telemetry.Tracing.Enabled = enabled
	b.cfg.Telemetry.Tracing.Endpoint = endpoint
	if b.cfg.Telemetry.Tracing.SampleRatio == 0 {
		b.cfg.Telemetry.Tracing.SampleRatio = DefaultTracingRatio
	}
	return b
}

// MinimalConfig returns a minimal valid configuration for testing.
// This is useful for tests that don't care about most configuration values.
func MinimalConfig() *Config {
	return NewTestConfig().Build()
}
