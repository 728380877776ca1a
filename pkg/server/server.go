// Package server provides the HTTP server fronting the gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"mercator-hq/tokencap/pkg/config"
	"mercator-hq/tokencap/pkg/gateway/middleware"
)

// Server owns the HTTP listener and the middleware chain. Routing and
// request semantics live in pkg/gateway; the server only wraps the routes
// it is given and manages the listen/shutdown lifecycle.
type Server struct {
	config       *config.ServerConfig
	routes       http.Handler
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a server that serves the given routes (the gateway mux)
// behind the standard middleware chain.
func NewServer(cfg *config.ServerConfig, routes http.Handler) *Server {
	return &Server{
		config:       cfg,
		routes:       routes,
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	// WriteTimeout stays at its configured value, zero by default: SSE
	// relays are open-ended and a server-level write deadline would cut
	// them off mid-stream.
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.buildHandler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting gateway server", "address", s.config.ListenAddress)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		slog.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Stop asks a blocked Start to shut the server down. Safe to call from any
// goroutine and at most once; later calls panic on the closed channel, so
// callers route repeat shutdowns through Shutdown instead.
func (s *Server) Stop() {
	close(s.shutdownChan)
}

// Shutdown gracefully shuts down the server, waiting up to the configured
// shutdown timeout for in-flight requests (including open streams) to end.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		slog.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("gateway server stopped")
	})

	return shutdownErr
}

// buildHandler wraps the gateway routes in the middleware chain. Order,
// outermost first: Recovery, CORS, RequestID, Logging. Per-route timeouts
// for admin endpoints are applied by the gateway itself so that forwarding
// routes stay free of deadlines.
func (s *Server) buildHandler() http.Handler {
	handler := s.routes

	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.CORS(s.corsConfig())(handler)
	handler = middleware.Recovery(handler)

	return handler
}

// corsConfig converts config.CORSConfig to the middleware's CORS config,
// falling back to the middleware defaults for the header lists so the
// X-Tokencap-* cost headers stay readable by browser clients unless the
// operator overrides them.
func (s *Server) corsConfig() *middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()

	cors.Enabled = s.config.CORS.Enabled
	cors.AllowCredentials = s.config.CORS.AllowCredentials
	if len(s.config.CORS.AllowedOrigins) > 0 {
		cors.AllowedOrigins = s.config.CORS.AllowedOrigins
	}
	if len(s.config.CORS.AllowedMethods) > 0 {
		cors.AllowedMethods = s.config.CORS.AllowedMethods
	}
	if len(s.config.CORS.AllowedHeaders) > 0 {
		cors.AllowedHeaders = s.config.CORS.AllowedHeaders
	}
	if len(s.config.CORS.ExposedHeaders) > 0 {
		cors.ExposedHeaders = s.config.CORS.ExposedHeaders
	}
	if s.config.CORS.MaxAge > 0 {
		cors.MaxAge = s.config.CORS.MaxAge
	}

	return cors
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the fully composed HTTP handler, for tests that drive the
// server through httptest instead of a real listener.
func (s *Server) Handler() http.Handler {
	return s.buildHandler()
}
