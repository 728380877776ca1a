package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the HTTP handler for the Prometheus scrape endpoint. The
// gateway mounts it on the path from MetricsConfig, "/metrics" by default,
// on the same listener as the forwarding routes.
//
// The handler serves only this collector's registry, not the global default
// registry, so a scrape sees exactly the gateway's request, token, cost, and
// budget series plus nothing inherited from libraries. OpenMetrics encoding
// is enabled for scrapers that negotiate it.
//
// Scrapes run with ContinueOnError: a metric family that fails to collect is
// skipped rather than failing the whole scrape, which keeps cost and budget
// series visible even if one collector misbehaves.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(
		c.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		},
	)
}
