package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"mercator-hq/tokencap/pkg/telemetry/tracing"
)

// ClientConfig configures the pooled HTTP client for one upstream.
type ClientConfig struct {
	// Name identifies the upstream in logs and errors ("openai", "anthropic").
	Name string

	// BaseURL is the upstream API root, e.g. "https://api.openai.com".
	BaseURL string

	// APIKey is the server-side default credential, used when the inbound
	// request carries none. Empty means clients must bring their own.
	APIKey string

	// Timeout bounds a buffered request/response exchange end to end.
	// Streaming exchanges are exempt: a healthy stream may outlive any
	// fixed total and is bounded by IdleReadTimeout instead.
	Timeout time.Duration

	// ConnectTimeout bounds dialing the upstream, for both exchange kinds.
	ConnectTimeout time.Duration

	// IdleReadTimeout is the longest a streaming response body may go
	// without delivering bytes before the exchange is cut off.
	IdleReadTimeout time.Duration

	// Connection pool tuning.
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// ApplyDefaults fills zero values with production-safe defaults.
func (c *ClientConfig) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.IdleReadTimeout == 0 {
		c.IdleReadTimeout = 90 * time.Second
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 100
	}
	if c.MaxIdleConnsPerHost == 0 {
		c.MaxIdleConnsPerHost = 10
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = 90 * time.Second
	}
}

// Client is a pooled HTTP client bound to one upstream base URL.
//
// It deliberately has no retry logic: by the time a request reaches the
// upstream it has been admitted against a budget, and replaying it could
// incur the provider's charge twice. Transport failures surface to the
// caller as a ForwardError and map to 502.
type Client struct {
	config ClientConfig
	client *http.Client
}

// NewClient creates a client with connection pooling per the config.
func NewClient(config ClientConfig) *Client {
	config.ApplyDefaults()

	dialer := &net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: config.ConnectTimeout,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		DisableCompression:  false,
		ForceAttemptHTTP2:   true,
	}

	// No http.Client.Timeout: it would also cap streaming bodies. Do and
	// Stream bound their exchanges through the request context instead.
	return &Client{
		config: config,
		client: &http.Client{Transport: transport},
	}
}

// Name returns the upstream's configured name.
func (c *Client) Name() string {
	return c.config.Name
}

// BaseURL returns the upstream API root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// DefaultAPIKey returns the server-side credential, empty if none.
func (c *Client) DefaultAPIKey() string {
	return c.config.APIKey
}

// Do sends body to the upstream path with the given headers and returns the
// response unread. The caller owns resp.Body. Any response the upstream
// produces, including 4xx and 5xx, is returned with a nil error; only a
// transport-level failure produces a ForwardError.
//
// The configured total Timeout covers the whole exchange, body read
// included; closing the body releases the deadline.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, header http.Header) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	resp, err := c.do(ctx, method, path, body, header)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// Stream sends body like Do but for an exchange whose response is an open-
// ended event stream. There is no total deadline; instead the body enforces
// IdleReadTimeout between reads, so a silent upstream is cut off while a
// long but talkative stream runs to completion.
func (c *Client) Stream(ctx context.Context, method, path string, body []byte, header http.Header) (*http.Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, err := c.do(ctx, method, path, body, header)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &idleBody{rc: resp.Body, idle: c.config.IdleReadTimeout, cancel: cancel}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, header http.Header) (*http.Response, error) {
	url := c.config.BaseURL + path

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}

	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// The gateway's span context supersedes any traceparent forwarded from
	// the inbound request, so the upstream joins this hop, not the caller's.
	tracing.Inject(ctx, req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ForwardError{Upstream: c.config.Name, URL: url, Cause: err}
	}
	return resp, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

// cancelBody releases a buffered exchange's deadline when the body is
// closed, so the timer does not outlive the response.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// idleBody cancels a streaming exchange when a single read sits longer than
// the idle allowance. Each Read arms a fresh timer, so the bound is on the
// gap between chunks, never the stream's total length.
type idleBody struct {
	rc       io.ReadCloser
	idle     time.Duration
	cancel   context.CancelFunc
	timedOut atomic.Bool
}

func (b *idleBody) Read(p []byte) (int, error) {
	timer := time.AfterFunc(b.idle, func() {
		b.timedOut.Store(true)
		b.cancel()
	})
	n, err := b.rc.Read(p)
	timer.Stop()
	if err != nil && err != io.EOF && b.timedOut.Load() {
		return n, fmt.Errorf("no data from upstream for %s: %w", b.idle, err)
	}
	return n, err
}

func (b *idleBody) Close() error {
	err := b.rc.Close()
	b.cancel()
	return err
}
