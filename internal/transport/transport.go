// Package transport provides the connection-pooling HTTP sender shared by
// every Client request: it injects User-Agent and Host headers, optionally
// reports Prometheus metrics, and retries exponentially on HTTP 429.
package transport

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// MetricsSink receives transport-level observations. internal/metrics.Collector
// satisfies this; it is declared here (rather than imported) to keep
// instrumentation optional without an import cycle.
type MetricsSink interface {
	ObserveRequest(host string, status int, duration time.Duration)
	ObserveRetry(host string)
}

// Transport wraps an *http.Client with the header-injection and retry
// behavior every registry request needs.
type Transport struct {
	client    *http.Client
	userAgent string
	host      string

	maxRetries int
	baseDelay  time.Duration
	maxElapsed time.Duration
	metrics    MetricsSink
	logger     *slog.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient overrides the underlying *http.Client (and its connection
// pool, proxy settings, and TLS config).
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.client = c }
}

// WithUserAgent sets the User-Agent header sent on every request. Passing
// "" disables the header.
func WithUserAgent(ua string) Option {
	return func(t *Transport) { t.userAgent = ua }
}

// WithHost sets the Host header value, matching the configured registry
// identity (scheme-less host[:port]).
func WithHost(host string) Option {
	return func(t *Transport) { t.host = host }
}

// WithMaxRetries bounds the number of 429 retries attempted.
func WithMaxRetries(n int) Option {
	return func(t *Transport) { t.maxRetries = n }
}

// WithBaseDelay sets the base delay for exponential backoff between
// retries.
func WithBaseDelay(d time.Duration) Option {
	return func(t *Transport) { t.baseDelay = d }
}

// WithMaxElapsed bounds the total wall-clock time spent retrying.
func WithMaxElapsed(d time.Duration) Option {
	return func(t *Transport) { t.maxElapsed = d }
}

// WithMetrics installs a MetricsSink for request/retry observations.
func WithMetrics(m MetricsSink) Option {
	return func(t *Transport) { t.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// New constructs a Transport with sensible defaults: a 30-second per-request
// timeout, up to 5 retries on 429 with a 250ms exponential base delay, and
// a 60-second bound on total retry elapsed time.
func New(opts ...Option) *Transport {
	t := &Transport{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 5,
		baseDelay:  250 * time.Millisecond,
		maxElapsed: 60 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do sends req, injecting User-Agent and Host headers, and retries
// exponentially while the response status is 429 Too Many Requests. Any
// other status, or a transport-level error, is returned immediately; only
// rate-limiting is retriable.
//
// req.Body must be nil or support GetBody for retries to re-send it;
// registry requests covered by this client are all bodyless GET/HEAD, so
// this is not a practical limitation.
func (t *Transport) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	t.decorate(req)

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}

	deadline := time.Now().Add(t.maxElapsed)
	var resp *http.Response
	var err error

	for attempt := 0; ; attempt++ {
		start := time.Now()
		resp, err = t.client.Do(req)
		elapsed := time.Since(start)

		if err != nil {
			t.logger.DebugContext(ctx, "registry request failed", "method", req.Method, "url", req.URL.String(), "error", err)
			return nil, err
		}

		if t.metrics != nil {
			t.metrics.ObserveRequest(host, resp.StatusCode, elapsed)
		}

		if resp.StatusCode != http.StatusTooManyRequests || attempt >= t.maxRetries {
			return resp, nil
		}

		if time.Now().After(deadline) {
			t.logger.WarnContext(ctx, "registry retry budget exhausted", "method", req.Method, "url", req.URL.String())
			return resp, nil
		}

		resp.Body.Close()
		if t.metrics != nil {
			t.metrics.ObserveRetry(host)
		}

		delay := t.baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		t.logger.DebugContext(ctx, "retrying after 429", "method", req.Method, "url", req.URL.String(), "delay", delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		if req.GetBody != nil {
			if body, rerr := req.GetBody(); rerr == nil && body != nil {
				req.Body = body
			}
		}
	}
}

func (t *Transport) decorate(req *http.Request) {
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if t.host != "" {
		req.Host = t.host
	}
}
