// internal/network/httpclient.go

// Package network builds the HTTP clients used to talk to the KBase services
// and the notification inbox: a tuned transport, transparent decompression
// and retries with backoff.
package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	DefaultDialTimeout           = 15 * time.Second
	DefaultKeepAliveInterval     = 30 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DefaultRequestTimeout        = 2 * time.Minute
	DefaultMaxIdleConnsPerHost   = 4
	DefaultIdleConnTimeout       = 90 * time.Second

	DefaultRetryMax     = 4
	DefaultRetryWaitMin = 500 * time.Millisecond
	DefaultRetryWaitMax = 10 * time.Second
)

// ClientConfig holds the knobs for a service client.
type ClientConfig struct {
	RequestTimeout     time.Duration
	InsecureSkipVerify bool
	UserAgent          string

	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// NewClientConfig returns the defaults.
func NewClientConfig() ClientConfig {
	return ClientConfig{
		RequestTimeout: DefaultRequestTimeout,
		RetryMax:       DefaultRetryMax,
		RetryWaitMin:   DefaultRetryWaitMin,
		RetryWaitMax:   DefaultRetryWaitMax,
	}
}

// NewHTTPTransport creates the base transport.
func NewHTTPTransport(cfg ClientConfig) *http.Transport {
	dialer := &net.Dialer{Timeout: DefaultDialTimeout, KeepAlive: DefaultKeepAliveInterval}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec // test deployments use self-signed certs
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		// Decoding happens in CompressionMiddleware.
		DisableCompression: true,
	}
}

// NewClient returns a retrying client whose transport decodes compressed
// responses and sets the user agent. Retries follow RetryPolicy.
func NewClient(cfg ClientConfig, logger *zap.Logger) *retryablehttp.Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	var rt http.RoundTripper = NewCompressionMiddleware(NewHTTPTransport(cfg))
	if cfg.UserAgent != "" {
		rt = &userAgentTransport{next: rt, agent: cfg.UserAgent}
	}

	c := retryablehttp.NewClient()
	c.HTTPClient = &http.Client{Transport: rt, Timeout: cfg.RequestTimeout}
	c.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		c.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		c.RetryWaitMax = cfg.RetryWaitMax
	}
	c.CheckRetry = RetryPolicy
	c.Logger = NewLeveledLogger(logger)
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return c
}

// RetryPolicy is retryablehttp's default policy, except that a 500 is final:
// the KBase services answer every JSON-RPC error with one.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp != nil && resp.StatusCode == http.StatusInternalServerError {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

type userAgentTransport struct {
	next  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	return t.next.RoundTrip(req)
}

// LeveledLogger adapts zap to retryablehttp.LeveledLogger.
type LeveledLogger struct {
	s *zap.SugaredLogger
}

var _ retryablehttp.LeveledLogger = (*LeveledLogger)(nil)

// NewLeveledLogger names the logger "http".
func NewLeveledLogger(logger *zap.Logger) *LeveledLogger {
	return &LeveledLogger{s: logger.Named("http").Sugar()}
}

func (l *LeveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l *LeveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l *LeveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *LeveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// NewRequest builds a retryable request bound to ctx.
func NewRequest(ctx context.Context, method, url string, body interface{}) (*retryablehttp.Request, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s: %w", method, url, err)
	}
	return req, nil
}
