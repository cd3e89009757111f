package etl

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/logger"
)

// ClientOptions tunes request timeouts, retries and rate limiting.
type ClientOptions struct {
	Timeout       time.Duration
	MaxAttempts   int
	BackoffFactor float64
	MaxRetryDelay time.Duration
	RateLimit     float64
	RateBurst     int
	Headers       map[string]string
	UserAgent     string
	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper
}

// DefaultClientOptions mirrors the RUNTIME__* config defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:       60 * time.Second,
		MaxAttempts:   5,
		BackoffFactor: 1,
		MaxRetryDelay: 300 * time.Second,
		RateLimit:     10,
		RateBurst:     5,
		UserAgent:     "jaffle-shop-pipeline/1.0",
	}
}

// Client is a rate-limited, retry-capable HTTP client.
type Client struct {
	opts        ClientOptions
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return "GET " + e.URL + ": " + http.StatusText(e.StatusCode) + ": " + e.Body
}

func NewClient(opts ClientOptions) *Client {
	def := DefaultClientOptions()
	if opts.Timeout == 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.MaxRetryDelay == 0 {
		opts.MaxRetryDelay = def.MaxRetryDelay
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = def.RateLimit
	}
	if opts.RateBurst == 0 {
		opts.RateBurst = def.RateBurst
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}

	return &Client{
		opts: opts,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
	}
}

// Get fetches rawURL, retrying transient failures with exponential backoff.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			logger.Warnf("Retrying %s in %s (attempt %d/%d): %v", rawURL, delay, attempt+1, c.opts.MaxAttempts, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}

		resp, err := c.doOnce(ctx, rawURL)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, errors.Wrapf(lastErr, "giving up after %d attempts", c.opts.MaxAttempts)
}

func (c *Client) backoff(attempt int) time.Duration {
	d := time.Duration(c.opts.BackoffFactor * float64(int64(1)<<uint(attempt-1)) * float64(time.Second))
	if d > c.opts.MaxRetryDelay {
		d = c.opts.MaxRetryDelay
	}
	return d
}

func (c *Client) doOnce(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", rawURL)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)
	for k, v := range c.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", rawURL)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading body of %s", rawURL)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, errors.WithStack(&StatusError{URL: rawURL, StatusCode: resp.StatusCode, Body: snippet})
	}

	return &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// isRetryable reports whether a request error is worth another attempt:
// network failures, 429 and 5xx responses.
func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
