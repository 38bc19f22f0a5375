package woo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// maxBackoff caps a single retry delay.
	maxBackoff = 2 * time.Minute
	// defaultRetryAfter is used when a throttle response omits Retry-After.
	defaultRetryAfter = 60 * time.Second
)

// Stats accumulates retry observability for the orchestrator's run summary.
type Stats struct {
	// Retries is the number of retried calls since the last TakeStats.
	Retries int
	// Backoff is the total delay spent waiting between retries.
	Backoff time.Duration
}

// Client is the single gateway to the upstream API. It serializes calls
// (the hourly quota is shared, so no client-side fan-out), paces them with
// a rate limiter sized to the quota, trips a circuit breaker on repeated
// failures and retries throttled or transient responses with backoff.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger

	mu      sync.Mutex // one in-flight call at a time
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
	stats   Stats
}

// NewClient creates a client for the configured upstream API.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	quota := cfg.HourlyQuota
	if quota <= 0 {
		quota = 3600
	}
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "woo-api",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: time.Duration(timeout) * time.Second},
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(float64(quota)/3600.0), 10),
		cb:      cb,
	}
}

// Get performs a GET against path and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.call(ctx, http.MethodGet, path, query, nil, out)
}

// Put performs a PUT with a JSON body and decodes the response into out.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, http.MethodPut, path, nil, body, out)
}

// UpdateProduct writes the given fields back to a product, or to one of its
// variations when variationID is set.
func (c *Client) UpdateProduct(ctx context.Context, productID int64, variationID *int64, upd ProductUpdate) error {
	path := fmt.Sprintf("/products/%d", productID)
	if variationID != nil {
		path = fmt.Sprintf("/products/%d/variations/%d", productID, *variationID)
	}
	return c.Put(ctx, path, upd, nil)
}

// TakeStats returns the accumulated retry stats and resets the counters.
func (c *Client) TakeStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	c.stats = Stats{}
	return s
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	attempts := c.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 5
	}

	var lastErr error
	_, cbErr := c.cb.Execute(func() (any, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(uint(attempts)),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				delay := retry.BackOffDelay(n, err, config)

				// A throttle response mandates the server-suggested wait.
				var tErr *ThrottleError
				if errors.As(err, &tErr) && tErr.RetryAfter > 0 {
					delay = tErr.RetryAfter
				}
				if delay > maxBackoff {
					delay = maxBackoff
				}

				c.stats.Retries++
				c.stats.Backoff += delay

				c.logger.Warn("Retrying source call",
					zap.Uint("attempt", n+1),
					zap.Duration("delay", delay),
					zap.String("path", path),
					zap.Error(err),
				)
				return delay
			}),
		)

		retryErr := r.Do(func() error {
			err := c.doOnce(ctx, method, path, query, body, out)
			if err != nil {
				lastErr = err
			}
			var fErr *FatalError
			if errors.As(err, &fErr) {
				return retry.Unrecoverable(err)
			}
			return err
		})
		return nil, retryErr
	})

	if cbErr == nil {
		return nil
	}
	if errors.Is(cbErr, gobreaker.ErrOpenState) || errors.Is(cbErr, gobreaker.ErrTooManyRequests) {
		return &TransientError{Cause: cbErr}
	}
	// Surface the typed error from the last attempt rather than the
	// retry library's aggregate.
	if lastErr != nil {
		return lastErr
	}
	return cbErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &FatalError{Status: 0, Body: fmt.Sprintf("encode request: %v", err)}
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &FatalError{Status: 0, Body: fmt.Sprintf("build request: %v", err)}
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransientError{Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Cause: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &ThrottleError{
			RetryAfter: parseRetryAfter(resp),
			Cause:      fmt.Errorf("status %d", resp.StatusCode),
		}
	case resp.StatusCode >= 500:
		return &TransientError{Cause: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return &FatalError{Status: resp.StatusCode, Body: truncate(string(data), 200)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &TransientError{Cause: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func parseRetryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
