// Package server provides the HTTP server that fronts the gateway.
//
// This package owns server lifecycle (start, graceful shutdown, OS signals)
// and the outer middleware chain. It is deliberately thin: what the routes
// do (estimation, admission, forwarding, charging) lives in pkg/gateway.
//
// # Basic Usage
//
// Creating and starting a server:
//
//	import (
//	    "context"
//	    "mercator-hq/tokencap/pkg/config"
//	    "mercator-hq/tokencap/pkg/gateway"
//	    "mercator-hq/tokencap/pkg/server"
//	)
//
//	cfg := config.GetConfig()
//
//	gw := gateway.New(cfg, estimator, controller, store, collector, tracer, version)
//
//	srv := server.NewServer(&cfg.Server, gw.Routes())
//	if err := srv.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// Start blocks until the context is cancelled, a SIGTERM/SIGINT arrives, or
// Shutdown/Stop is called. The shutdown process:
//
//  1. Stops accepting new connections
//  2. Waits for active requests and open streams to complete (up to the
//     configured shutdown timeout)
//  3. Forces connection closure if the timeout is exceeded
//
// # Middleware Chain
//
// Requests pass through the following middleware (outermost first):
//
//  1. Recovery: converts handler panics into 500 responses
//  2. CORS: preflight handling; exposes the X-Tokencap-* cost headers
//  3. RequestID: generates X-Tokencap-Request-Id
//  4. Logging: structured request/response logging
//
// There is no server-wide timeout middleware. The write timeout defaults to
// zero because streaming responses are open-ended; admin routes get their
// own context deadline inside the gateway.
package server
