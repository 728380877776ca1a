// Package config provides configuration management for tokencap.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with comprehensive validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// An empty path is valid for the second form: the gateway then runs on
// defaults plus environment variables, with no file at all.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention TOKENCAP_SECTION_FIELD.
// For example:
//
//   - TOKENCAP_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - TOKENCAP_UPSTREAMS_OPENAI_API_KEY overrides upstreams.openai.api_key
//   - TOKENCAP_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// The providers' conventional key variables (OPENAI_API_KEY,
// ANTHROPIC_API_KEY) are honored as fallbacks when no tokencap-specific
// override is present. Environment variables always take precedence over
// file-based configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
// For application-wide configuration access, use the singleton pattern:
//
//	// At application startup
//	if err := config.Initialize("config.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Anywhere in the application
//	cfg := config.GetConfig()
//	fmt.Println(cfg.Server.ListenAddress)
//
// For testing, prefer dependency injection with explicit Config instances
// rather than the global singleton.
//
// # Example Configuration
//
// Here is a minimal configuration file:
//
//	server:
//	  listen_address: "127.0.0.1:8790"
//
//	database:
//	  path: "./tokencap.db"
//
//	defaults:
//	  project_id: "default"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//
// API keys are best left out of the file and supplied through the
// environment (OPENAI_API_KEY, ANTHROPIC_API_KEY, or the TOKENCAP_UPSTREAMS_*
// overrides).
//
// # Thread Safety
//
// All configuration access is thread-safe. The singleton pattern uses
// read-write locks to allow concurrent reads while protecting against
// concurrent writes during reload operations.
package config
