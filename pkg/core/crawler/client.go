// Package crawler fetches filing data from SEC EDGAR: politely rate limited,
// instrumented, and retried on transient failures.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"xbrl_crawler/pkg/core/ratelimit"
)

const (
	crawlerType = "sec_edgar"

	defaultRequestTimeout = 30 * time.Second
	defaultMaxRetries     = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxConcurrent  = 4
)

// ClientConfig configures the polite HTTP client. UserAgent is mandatory:
// SEC blocks anonymous crawlers, so a missing value is a construction error
// rather than a per-request surprise.
type ClientConfig struct {
	UserAgent      string
	RequestTimeout time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrent  int64
}

// Client is a rate-limited HTTP fetcher. All requests pass through the
// per-host limiter, a global concurrency semaphore, and the retry loop.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.HostLimiter
	sem        *semaphore.Weighted
	metrics    *Metrics
	cfg        ClientConfig
}

// NewClient builds a Client. limiter and metrics must be non-nil.
func NewClient(cfg ClientConfig, limiter *ratelimit.HostLimiter, metrics *Metrics) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("crawler: user agent is required (SEC fair-access policy)")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    limiter,
		sem:        semaphore.NewWeighted(cfg.MaxConcurrent),
		metrics:    metrics,
		cfg:        cfg,
	}, nil
}

// httpStatusError carries a non-2xx status through the retry classifier.
type httpStatusError struct {
	status int
	url    string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.status, e.url)
}

// Fetch downloads rawURL and returns the response body. Transient failures
// (timeouts, connection resets, 429, 5xx) are retried with exponential
// backoff up to MaxRetries; 404 and other client errors fail immediately.
// endpoint is the logical name used for metric labels.
func (c *Client) Fetch(ctx context.Context, rawURL, endpoint string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("crawler: malformed url %q", rawURL)
	}
	host := u.Host

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	backoff := c.cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.Retries.WithLabelValues(crawlerType, host, endpoint).Inc()
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		if err := c.limiter.Wait(ctx, host); err != nil {
			return nil, err
		}

		body, err := c.doRequest(ctx, rawURL, host, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !c.retryable(ctx, err, host) {
			c.metrics.Errors.WithLabelValues(crawlerType, host, endpoint, errorType(err)).Inc()
			return nil, err
		}
	}
	c.metrics.Errors.WithLabelValues(crawlerType, host, endpoint, errorType(lastErr)).Inc()
	return nil, fmt.Errorf("crawler: %s failed after %d retries: %w", rawURL, c.cfg.MaxRetries, lastErr)
}

func (c *Client) doRequest(ctx context.Context, rawURL, host, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, text/html, application/xml")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start).Seconds()
	c.metrics.Duration.WithLabelValues(crawlerType, host, endpoint).Observe(elapsed)

	if err != nil {
		if isTimeout(err) {
			c.metrics.Timeouts.WithLabelValues(crawlerType, host, endpoint).Inc()
		}
		c.metrics.Requests.WithLabelValues(crawlerType, host, endpoint, "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	c.metrics.Requests.WithLabelValues(crawlerType, host, endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &httpStatusError{status: resp.StatusCode, url: rawURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	c.metrics.BytesFetched.WithLabelValues(crawlerType, host, endpoint).Add(float64(len(body)))
	return body, nil
}

// retryable classifies an error. 429 and 5xx are server-side pressure and
// worth retrying, as are network-level failures (per-request timeout,
// connection reset, DNS hiccup). 404 and the remaining 4xx mean the request
// itself is wrong. A cancelled or expired caller context is never retried.
func (c *Client) retryable(ctx context.Context, err error, host string) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		if statusErr.status == http.StatusTooManyRequests {
			c.metrics.RateLimitHits.WithLabelValues(crawlerType, host).Inc()
			return true
		}
		return statusErr.status >= 500
	}
	return true
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func errorType(err error) string {
	var statusErr *httpStatusError
	switch {
	case errors.As(err, &statusErr):
		if statusErr.status == http.StatusTooManyRequests {
			return "rate_limited"
		}
		if statusErr.status >= 500 {
			return "server_error"
		}
		return "client_error"
	case isTimeout(err):
		return "timeout"
	default:
		return "network"
	}
}
