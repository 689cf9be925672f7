// Package papersources holds the HTTP plumbing shared by source catalog
// clients: a rate-limited client with an optional retry policy.
package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Client defaults.
const (
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerSecond = 10
	DefaultBaseDelay         = time.Second
	DefaultMaxDelay          = 30 * time.Second
)

// RetryPolicy decides whether and when a failed request is attempted again.
// The zero value never retries.
type RetryPolicy struct {
	// MaxRetries is the number of extra attempts on 429, 5xx and network errors.
	MaxRetries int
	// BaseDelay is the first backoff; it doubles on each further attempt.
	BaseDelay time.Duration
	// MaxDelay caps every wait, including one asked for by Retry-After.
	MaxDelay time.Duration
}

func (p *RetryPolicy) applyDefaults() {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
}

// Retryable reports whether a response status is worth another attempt.
func (p RetryPolicy) Retryable(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}

// Delay returns the wait before retry number attempt (0-based). A positive
// Retry-After, in seconds or as an HTTP date, wins over the backoff.
func (p RetryPolicy) Delay(attempt int, retryAfter string, now time.Time) time.Duration {
	if d, ok := parseRetryAfter(retryAfter, now); ok {
		return min(d, p.MaxDelay)
	}
	d := p.BaseDelay
	for i := 0; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	return min(d, p.MaxDelay)
}

func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, seconds > 0
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		return d, d > 0
	}
	return 0, false
}

// Options configures a Client.
type Options struct {
	// Timeout bounds each attempt.
	Timeout time.Duration
	// RequestsPerSecond is the sustained request rate; Burst the bucket size.
	RequestsPerSecond float64
	Burst             int
	// Retry is the retry policy. The zero value surfaces failures immediately.
	Retry RetryPolicy
	// Header is added to every request that does not already set the key.
	Header http.Header
}

// Client is an http.Client behind a token bucket. It is safe for concurrent use.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	retry   RetryPolicy
	header  http.Header
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client, filling unset options with defaults.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	opts.Retry.applyDefaults()

	return &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		retry:   opts.Retry,
		header:  opts.Header.Clone(),
		now:     time.Now,
		sleep:   Sleep,
	}
}

// Do sends req, waiting for the rate limiter before every attempt. Retryable
// failures are attempted again while the policy allows; after that the last
// response is returned unread so the caller can report its status.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for key, values := range c.header {
		if req.Header.Get(key) == "" {
			req.Header[key] = values
		}
	}

	ctx := req.Context()
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
		final := attempt >= c.retry.MaxRetries

		resp, err := c.http.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || final {
				return nil, fmt.Errorf("request failed: %w", err)
			}
			if err := c.backoff(req, c.retry.Delay(attempt, "", c.now())); err != nil {
				return nil, err
			}
			continue
		}

		if final || !c.retry.Retryable(resp.StatusCode) {
			return resp, nil
		}

		delay := c.retry.Delay(attempt, resp.Header.Get("Retry-After"), c.now())
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		if err := c.backoff(req, delay); err != nil {
			return nil, err
		}
	}
}

// backoff waits and rewinds the request body for the next attempt.
func (c *Client) backoff(req *http.Request, delay time.Duration) error {
	if err := c.sleep(req.Context(), delay); err != nil {
		return err
	}
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("cannot retry request: %w", err)
	}
	req.Body = body
	return nil
}

// Sleep waits for d or until ctx ends. A non-positive d only checks ctx.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
