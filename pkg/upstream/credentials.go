package upstream

import (
	"net/http"
	"strings"
)

// Credential is an API key extracted from an inbound request or taken from
// server configuration.
type Credential struct {
	// Key is the raw secret, without any "Bearer " prefix.
	Key string

	// FromClient is true when the caller supplied the key, false when it is
	// the server-side default.
	FromClient bool
}

// ExtractCredential pulls an API key from the inbound request headers,
// accepting either "Authorization: Bearer <key>" or "X-API-Key: <key>".
// When the request carries neither, the defaultKey is used. Returns
// ErrNoCredentials when no key is available from either source.
func ExtractCredential(h http.Header, defaultKey string) (Credential, error) {
	if auth := h.Get("Authorization"); auth != "" {
		key := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if key != "" && key != auth {
			return Credential{Key: key, FromClient: true}, nil
		}
	}
	if key := strings.TrimSpace(h.Get("X-API-Key")); key != "" {
		return Credential{Key: key, FromClient: true}, nil
	}
	if defaultKey != "" {
		return Credential{Key: defaultKey, FromClient: false}, nil
	}
	return Credential{}, ErrNoCredentials
}

// hopHeaders are stripped before forwarding; they describe the inbound
// connection, not the request.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ForwardHeaders builds the outbound header set: the inbound headers minus
// hop-by-hop and credential headers, minus Host and Content-Length (the
// client recomputes those). Accept-Encoding is also dropped: the transport
// negotiates its own compression and decompresses transparently, which keeps
// response bodies readable for usage extraction. X-Tokencap-* control
// headers address the gateway, not the provider, and stay behind it. The
// adapter adds its own auth headers on top.
func ForwardHeaders(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for key, values := range in {
		if strings.HasPrefix(http.CanonicalHeaderKey(key), "X-Tokencap-") {
			continue
		}
		out[key] = append([]string(nil), values...)
	}
	for _, h := range hopHeaders {
		out.Del(h)
	}
	out.Del("Authorization")
	out.Del("X-API-Key")
	out.Del("Host")
	out.Del("Content-Length")
	out.Del("Accept-Encoding")
	return out
}
