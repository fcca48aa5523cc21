// Package circuithttp is a generic resilient HTTP client (C3): a named
// circuit breaker per downstream plus a retry layer outside the breaker,
// exactly the split spec.md §4.3 describes.
package circuithttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Abraxas-365/craftable/logx"
	"github.com/sony/gobreaker"
)

// Config tunes one named breaker + its retry policy.
type Config struct {
	Name               string
	FailureThreshold   uint32        // consecutive failures to trip CLOSED -> OPEN
	SuccessThreshold   uint32        // consecutive successes to close HALF-OPEN -> CLOSED
	ResetTimeout       time.Duration // OPEN -> HALF-OPEN after this elapses
	Retries            int           // retry attempts for 5xx/network errors
	RetryDelay         time.Duration // base delay; attempt n waits RetryDelay*2^(n-1)
	RequestTimeout     time.Duration
}

func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		ResetTimeout:     30 * time.Second,
		Retries:          3,
		RetryDelay:       500 * time.Millisecond,
		RequestTimeout:   10 * time.Second,
	}
}

// Client wraps http.Client with a per-instance breaker and retry loop.
// One Client should be constructed per named downstream (case-service,
// notification-service, the provider's two control planes, ...).
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	cfg        Config
}

func New(cfg Config) *Client {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.SuccessThreshold,
		Interval:    0, // counts never reset on a timer while CLOSED; only consecutive failures matter
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logx.Info("circuit breaker %s: %s -> %s", name, from, to)
		},
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		breaker:    gobreaker.NewCircuitBreaker[*http.Response](settings),
		cfg:        cfg,
	}
}

// serverStatusErr marks a 5xx response as a breaker failure while still
// carrying the response through to the caller on the final attempt.
type serverStatusErr struct {
	resp *http.Response
	code int
}

func (e *serverStatusErr) Error() string { return fmt.Sprintf("server error status %d", e.code) }

// Do executes req through the breaker, retrying 5xx/network failures with
// exponential backoff. 4xx responses are returned as-is, never retried,
// and do not count as breaker failures (spec.md §4.3).
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.Retries+1; attempt++ {
		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			return c.do(req)
		})

		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, ErrCircuitOpen(c.cfg.Name)
		}

		if err == nil {
			return resp, nil
		}

		if statusErr, ok := err.(*serverStatusErr); ok {
			lastErr = fmt.Errorf("%s: server error status %d", c.cfg.Name, statusErr.code)
			resp = statusErr.resp
		} else {
			lastErr = classifyNetworkErr(c.cfg.Name, err)
		}

		if attempt <= c.cfg.Retries {
			delay := c.cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		if resp != nil {
			return resp, lastErr
		}
	}

	return nil, lastErr
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, &serverStatusErr{resp: resp, code: resp.StatusCode}
	}
	return resp, nil
}

func classifyNetworkErr(name string, err error) error {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return ErrTimeout(name, err)
	}
	return ErrNetworkError(name, err)
}

// State exposes the current breaker state for health reporting.
func (c *Client) State() string {
	return c.breaker.State().String()
}
