// Package logging provides structured logging with credential redaction.
//
// # Overview
//
// The logging package wraps Go's standard log/slog package to provide:
//   - Structured logging in JSON or text format
//   - Automatic credential redaction (API keys, bearer tokens)
//   - Context-aware logging with request and project metadata
//   - Configurable log levels (debug, info, warn, error)
//
// # Usage
//
//	// Build a logger and install it as the slog default
//	logger, err := logging.Setup(logging.Config{
//	    Level:      "info",
//	    Format:     "json",
//	    RedactKeys: true,
//	})
//
//	// Log structured data
//	logger.Info("request forwarded",
//	    "request_id", "req-123",
//	    "api_key", "sk-abc123",  // Automatically redacted
//	    "duration_ms", 1234,
//	)
//
//	// Carry common fields through context
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.WithContext(ctx).Info("charge recorded")  // Includes request_id
//
// # Redaction
//
// When RedactKeys is enabled, the handler masks credentials before they
// reach any sink:
//
//   - API keys: sk-abc123xyz → sk-***
//   - Bearer tokens: Bearer eyJhb... → Bearer ***
//   - Attrs with sensitive key names (authorization, api_key, token, ...)
//
// Redaction wraps the handler, so loggers derived from the default via
// slog.Default().With(...) inherit it.
package logging
