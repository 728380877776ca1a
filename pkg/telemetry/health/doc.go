// Package health runs component checks behind the gateway's /health endpoint.
//
// # Overview
//
// The health package aggregates named component checks into a single
// readiness verdict. The gateway registers a check per dependency it cannot
// serve without and maps the aggregate onto GET /health: 200 while every
// component passes, 503 as soon as one fails.
//
// # Usage
//
//	checker := health.New(0) // 0 selects the default per-check timeout
//
//	checker.RegisterCheck("ledger", func(ctx context.Context) error {
//	    return store.Ping(ctx)
//	})
//
//	status := checker.CheckReadiness(ctx)
//	for name, result := range status.Checks {
//	    if result.Status != "ok" {
//	        // result.Message names what broke, e.g. "database is locked"
//	    }
//	}
//
// # Liveness vs Readiness
//
// CheckLiveness answers "is the process running" and never consults
// component checks, so it is safe for tight probe intervals. CheckReadiness
// runs every registered check concurrently under a per-check timeout; a
// stuck component turns up as unhealthy instead of hanging the probe.
//
// # Component Checks
//
// The gateway registers:
//   - ledger: the SQLite usage ledger answers a ping
//
// Checks are replaceable at runtime; registering a name again swaps the
// function, and UnregisterCheck removes it.
package health
