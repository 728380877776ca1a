package upstream

import (
	"errors"
	"fmt"
)

// ErrNoCredentials is returned when a request carries no API credential and
// the upstream has no server-side default configured.
var ErrNoCredentials = errors.New("no API credential in request and no default configured")

// ForwardError wraps a transport-level failure reaching the upstream. The
// upstream never saw (or never answered) the request, so nothing was charged.
type ForwardError struct {
	Upstream string
	URL      string
	Cause    error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("upstream %s unreachable at %s: %v", e.Upstream, e.URL, e.Cause)
}

func (e *ForwardError) Unwrap() error {
	return e.Cause
}

// ParseError wraps a malformed inbound request body.
type ParseError struct {
	Upstream string
	Cause    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s request: %v", e.Upstream, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// IsForwardError reports whether err is a transport failure to an upstream.
func IsForwardError(err error) bool {
	var fe *ForwardError
	return errors.As(err, &fe)
}

// IsParseError reports whether err is a malformed-request error.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
