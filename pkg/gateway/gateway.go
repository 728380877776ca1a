package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/tokencap/pkg/budget"
	"mercator-hq/tokencap/pkg/config"
	"mercator-hq/tokencap/pkg/gateway/events"
	"mercator-hq/tokencap/pkg/gateway/middleware"
	"mercator-hq/tokencap/pkg/ledger"
	"mercator-hq/tokencap/pkg/pricing"
	"mercator-hq/tokencap/pkg/telemetry/health"
	"mercator-hq/tokencap/pkg/telemetry/metrics"
	"mercator-hq/tokencap/pkg/telemetry/tracing"
	"mercator-hq/tokencap/pkg/upstream"
	"mercator-hq/tokencap/pkg/upstream/anthropic"
	"mercator-hq/tokencap/pkg/upstream/openai"
)

// Gateway owns the HTTP handlers and the dependencies they share. Build one
// with New, then mount Routes on a server.
type Gateway struct {
	cfg        *config.Config
	estimator  *pricing.Estimator
	controller *budget.Controller
	store      *ledger.Store
	adapters   []upstream.Adapter
	events     events.Sink
	metrics    *metrics.Collector
	tracer     *tracing.Tracer
	health     *health.Checker
	logger     *slog.Logger

	version string
	started time.Time
}

// New assembles a gateway over constructed dependencies. Provider adapters
// are built from cfg.Upstreams; a provider with no entry there gets no
// route. The ledger is registered as a health check.
func New(cfg *config.Config, estimator *pricing.Estimator, controller *budget.Controller, store *ledger.Store, collector *metrics.Collector, tracer *tracing.Tracer, version string) *Gateway {
	g := &Gateway{
		cfg:        cfg,
		estimator:  estimator,
		controller: controller,
		store:      store,
		metrics:    collector,
		tracer:     tracer,
		health:     health.New(0),
		logger:     slog.Default().With("component", "gateway"),
		version:    version,
		started:    time.Now(),
	}

	g.events = events.NewDispatcher(
		events.NewLogSink(slog.Default()),
		events.NewMetricsSink(collector),
	)

	if uc, ok := cfg.Upstreams[upstream.ProviderOpenAI]; ok {
		g.adapters = append(g.adapters, openai.New(newUpstreamClient(upstream.ProviderOpenAI, uc)))
	}
	if uc, ok := cfg.Upstreams[upstream.ProviderAnthropic]; ok {
		g.adapters = append(g.adapters, anthropic.New(newUpstreamClient(upstream.ProviderAnthropic, uc)))
	}

	g.health.RegisterCheck("ledger", func(ctx context.Context) error {
		return store.Ping(ctx)
	})

	return g
}

// newUpstreamClient maps one upstream config section onto a pooled client.
func newUpstreamClient(name string, uc config.UpstreamConfig) *upstream.Client {
	return upstream.NewClient(upstream.ClientConfig{
		Name:                name,
		BaseURL:             uc.BaseURL,
		APIKey:              uc.APIKey,
		Timeout:             uc.Timeout,
		ConnectTimeout:      uc.ConnectTimeout,
		IdleReadTimeout:     uc.IdleReadTimeout,
		MaxIdleConns:        uc.MaxIdleConns,
		MaxIdleConnsPerHost: uc.MaxIdleConnsPerHost,
		IdleConnTimeout:     uc.IdleConnTimeout,
	})
}

// Adapters returns the configured provider adapters, for introspection.
func (g *Gateway) Adapters() []upstream.Adapter {
	return g.adapters
}

// Routes builds the gateway mux: forwarding and admin routes. The server
// wraps the result in the shared middleware chain; only the per-route admin
// timeout is applied here, because forwarding endpoints must stay free of
// deadlines while a stream is open.
func (g *Gateway) Routes() http.Handler {
	mux := http.NewServeMux()

	for _, adapter := range g.adapters {
		mux.Handle(adapter.Path(), g.forwardHandler(adapter))
	}

	admin := middleware.Timeout(g.cfg.Server.AdminTimeout)
	mux.Handle("/v1/budget", admin(http.HandlerFunc(g.handleBudget)))
	mux.Handle("/v1/budget/reset", admin(http.HandlerFunc(g.handleBudgetReset)))
	mux.Handle("/v1/usage", admin(http.HandlerFunc(g.handleUsage)))
	mux.Handle("/v1/usage/history", admin(http.HandlerFunc(g.handleUsageHistory)))
	mux.Handle("/v1/pricing", admin(http.HandlerFunc(g.handlePricingList)))
	mux.Handle("/v1/pricing/", admin(http.HandlerFunc(g.handlePricingLookup)))
	mux.Handle("/health", http.HandlerFunc(g.handleHealth))

	if g.cfg.Telemetry.Metrics.Enabled {
		path := g.cfg.Telemetry.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, g.metrics.Handler())
	}

	return mux
}
