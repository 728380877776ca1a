package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redactor masks credentials in log output. It catches API keys in both
// string values and attr values, plus any attr whose key name indicates a
// secret (authorization, api_key, token, ...). The gateway never logs
// message content, so redaction focuses on the credential shapes that pass
// through it.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern pairs a compiled regex with its replacement.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Pattern names, exported so tests can reference them.
const (
	PatternAPIKey      = "api_key"
	PatternBearerToken = "bearer_token"
	PatternPassword    = "password"
)

// NewRedactor creates a Redactor with the built-in credential patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*redactPattern{
			// Provider API keys: sk-..., sk-ant-..., sk-proj-...
			{
				name:        PatternAPIKey,
				regex:       regexp.MustCompile(`sk-[a-zA-Z0-9_-]+`),
				replacement: "sk-***",
			},
			// Authorization header values
			{
				name:        PatternBearerToken,
				regex:       regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9\-._~+/]+=*`),
				replacement: "Bearer ***",
			},
			// Inline password assignments
			{
				name:        PatternPassword,
				regex:       regexp.MustCompile(`(?i)(password|passwd|pwd)[:=]\s*\S+`),
				replacement: "$1: ***",
			},
		},
	}
}

// RedactString masks credential patterns in a string value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	redacted := value
	for _, pattern := range r.patterns {
		redacted = pattern.regex.ReplaceAllString(redacted, pattern.replacement)
	}
	return redacted
}

// RedactAttr masks a single slog attribute. Attrs with sensitive key names
// are masked entirely, keeping a short prefix for identification; string
// values are additionally pattern-scanned. Groups are redacted recursively.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		members := a.Value.Group()
		redacted := make([]slog.Attr, len(members))
		for i, m := range members {
			redacted[i] = r.RedactAttr(m)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, maskValue(a.Value))
	}

	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	}
	return a
}

// isSensitiveKey reports whether a key name indicates a credential.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{
		"password", "passwd", "pwd",
		"secret", "token", "api_key", "apikey", "api-key",
		"authorization", "credential",
		"private_key", "privatekey",
	} {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}

// maskValue replaces a sensitive value, keeping the first four characters of
// strings so operators can still tell which key was used.
func maskValue(v slog.Value) string {
	if v.Kind() == slog.KindString {
		s := v.String()
		if s == "" {
			return ""
		}
		if len(s) <= 4 {
			return "***"
		}
		return s[:4] + "***"
	}
	return "***"
}

// RedactAPIKey masks an API key for display, keeping only a short prefix.
func RedactAPIKey(apiKey string) string {
	if len(apiKey) <= 4 {
		return "***"
	}
	return apiKey[:4] + "***"
}

// RedactHeader returns a copy-safe rendering of a header value for logs.
// Authorization and X-API-Key values are masked; everything else passes
// through pattern redaction.
func (r *Redactor) RedactHeader(name, value string) string {
	if isSensitiveKey(name) {
		return maskValue(slog.StringValue(value))
	}
	return r.RedactString(value)
}
