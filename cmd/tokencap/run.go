package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/tokencap/pkg/budget"
	"mercator-hq/tokencap/pkg/cli"
	"mercator-hq/tokencap/pkg/config"
	"mercator-hq/tokencap/pkg/gateway"
	"mercator-hq/tokencap/pkg/ledger"
	"mercator-hq/tokencap/pkg/ledger/retention"
	"mercator-hq/tokencap/pkg/pricing"
	"mercator-hq/tokencap/pkg/server"
	"mercator-hq/tokencap/pkg/telemetry/logging"
	"mercator-hq/tokencap/pkg/telemetry/metrics"
	"mercator-hq/tokencap/pkg/telemetry/tracing"
	"mercator-hq/tokencap/pkg/tokens"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dbPath        string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the tokencap gateway server",
	Long: `Start the tokencap gateway server with the specified configuration.

The server listens on the configured address, estimates the cost of every
LLM API request it receives, admits or rejects it against the project's
budget, forwards admitted requests to the upstream provider, and charges
the actual cost to the usage ledger.

Examples:
  # Start with default config
  tokencap run

  # Start with custom config
  tokencap run --config /etc/tokencap/config.yaml

  # Override listen address
  tokencap run --listen 0.0.0.0:8790

  # Validate config without starting server
  tokencap run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.dbPath, "db", "", "override ledger database path")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if runFlags.dbPath != "" {
		cfg.Database.Path = runFlags.dbPath
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	// Initialize logging based on config
	if _, err := logging.Setup(logging.Config{
		Level:      cfg.Telemetry.Logging.Level,
		Format:     cfg.Telemetry.Logging.Format,
		AddSource:  cfg.Telemetry.Logging.AddSource,
		RedactKeys: cfg.Telemetry.Logging.RedactKeys,
	}); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	// Print startup banner
	printBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the usage ledger
	store, err := ledger.Open(&ledger.Config{
		Path:         cfg.Database.Path,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		BusyTimeout:  cfg.Database.BusyTimeout,
	})
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to open ledger: %w", err))
	}
	defer store.Close()

	if n, err := store.CountUsage(ctx); err == nil {
		fmt.Printf("✓ Ledger opened (%d usage records)\n", n)
	} else {
		fmt.Println("✓ Ledger opened")
	}

	// Build the pricing catalog, with file overrides if configured
	catalog := pricing.NewCatalog()
	if cfg.Pricing.OverridesPath != "" {
		overrides, err := pricing.LoadOverrides(cfg.Pricing.OverridesPath)
		if err != nil {
			return cli.NewConfigError("pricing.overrides_path", err.Error())
		}
		if err := catalog.ApplyOverrides(overrides); err != nil {
			return cli.NewConfigError("pricing.overrides_path", err.Error())
		}

		if cfg.Pricing.Watch {
			watcher := pricing.NewWatcher(catalog, cfg.Pricing.OverridesPath, slog.Default())
			go func() {
				if err := watcher.Watch(ctx); err != nil {
					slog.Error("pricing overrides watcher stopped", "error", err)
				}
			}()
		}
	}
	fmt.Printf("✓ Pricing catalog loaded (%d models)\n", len(catalog.Rows()))

	estimator := pricing.NewEstimator(catalog, cfg.Defaults.OutputTokens)
	defer tokens.ReleaseEncoders()

	controller := budget.NewController(store)

	// Telemetry
	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return cli.NewConfigError("telemetry.tracing", err.Error())
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()
	if cfg.Telemetry.Tracing.Enabled {
		fmt.Printf("✓ Tracing enabled (endpoint: %s)\n", cfg.Telemetry.Tracing.Endpoint)
	}

	// Ledger maintenance (retention pruning, budget period sweeps)
	maintainer := retention.NewMaintainer(store, &retention.Config{
		RetentionDays: cfg.Retention.Days,
		Schedule:      cfg.Retention.Schedule,
	})
	if err := maintainer.Start(ctx); err != nil {
		slog.Warn("failed to start ledger maintenance", "error", err)
	} else {
		defer maintainer.Stop()
		if next := maintainer.NextRun(); next != nil {
			slog.Debug("ledger maintenance scheduled", "next_run", next)
		}
	}

	// Assemble the gateway and the HTTP server fronting it
	gw := gateway.New(cfg, estimator, controller, store, collector, tracer, Version)
	fmt.Printf("✓ Upstreams configured (%d providers)\n", len(gw.Adapters()))

	srv := server.NewServer(&cfg.Server, gw.Routes())

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// Wait for server to be ready
	if err := waitForServerReady(cfg.Server.ListenAddress, 5*time.Second); err != nil {
		// A bind failure is more useful than the dial timeout it causes.
		select {
		case serr := <-errChan:
			return cli.NewCommandError("run", serr)
		default:
		}
		return fmt.Errorf("server failed to start: %w", err)
	}

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	for _, adapter := range gw.Adapters() {
		fmt.Printf("✓ Forwarding %s requests at http://%s%s\n", adapter.Provider(), cfg.Server.ListenAddress, adapter.Path())
	}
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for shutdown signal or server error
	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
			return cli.NewCommandError("run", err)
		}

		fmt.Println("✓ Server stopped")
		return nil
	}
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Tokencap v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	if len(cfg.Upstreams) > 0 {
		slog.Debug("upstreams configured", "count", len(cfg.Upstreams))
	}
	if cfg.Pricing.OverridesPath != "" {
		slog.Debug("pricing overrides", "path", cfg.Pricing.OverridesPath, "watch", cfg.Pricing.Watch)
	}
	if cfg.Retention.Days > 0 {
		slog.Debug("ledger retention", "days", cfg.Retention.Days, "schedule", cfg.Retention.Schedule)
	}
}

// waitForServerReady polls the listen address until it accepts TCP
// connections, so the startup banner prints only once clients can actually
// connect.
func waitForServerReady(address string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", address, 250*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s not accepting connections after %s: %w", address, timeout, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
