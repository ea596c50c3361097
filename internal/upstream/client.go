package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Client errors.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("upstream circuit open")

	// ErrUnauthorized is returned on HTTP 401. The gateway reacts by
	// invalidating its cached bearer token and retrying the call once.
	ErrUnauthorized = errors.New("upstream rejected credentials")
)

// StatusError is returned for non-retryable, non-2xx responses.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// rateLimitedError marks an HTTP 429 so the retry loop can back off on it.
type rateLimitedError struct{}

func (rateLimitedError) Error() string { return "upstream rate limited" }

// serverError marks an HTTP 5xx so it trips the circuit breaker and retries.
type serverError struct {
	statusCode int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("upstream server error %d", e.statusCode)
}

// ClientConfig holds configuration for the resilient upstream client.
type ClientConfig struct {
	// Name identifies this client for breaker naming.
	Name string

	// Timeout is the per-attempt HTTP timeout. Default: 10s.
	Timeout time.Duration

	// MaxRetries bounds retry attempts on 429/5xx/transport errors.
	// Default: 3.
	MaxRetries uint64

	// InitialInterval is the first retry delay. Default: 2s. With the
	// default doubling this yields the 2s/4s/8s schedule.
	InitialInterval time.Duration

	// MaxInterval caps the retry delay. Default: 8s.
	MaxInterval time.Duration

	// Breaker configures the circuit breaker. Nil uses defaults.
	Breaker *BreakerConfig
}

// Client is a resilient HTTP client for upstream transit API calls.
// Retries are bounded: 429 and 5xx responses and transport errors are
// retried with exponential backoff; 401 and other 4xx are surfaced
// immediately as typed errors.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*responseCapture]
	config     ClientConfig
}

// responseCapture carries the response through the breaker together with the
// classification of its status.
type responseCapture struct {
	resp *http.Response
}

// NewClient creates a resilient upstream client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 2 * time.Second
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 8 * time.Second
	}

	breakerCfg := DefaultBreakerConfig(cfg.Name)
	if cfg.Breaker != nil {
		breakerCfg = *cfg.Breaker
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    newBreaker(breakerCfg),
		config:     cfg,
	}
}

// Do executes the request with circuit breaking and bounded retry.
// The caller owns the response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext executes the request under the given context.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // retries bounded by WithMaxRetries below

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var result *http.Response

	operation := func() error {
		capture, err := c.breaker.Execute(func() (*responseCapture, error) {
			reqClone := req.Clone(ctx)
			resp, err := c.httpClient.Do(reqClone)
			if err != nil {
				return nil, err
			}

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				resp.Body.Close()
				return nil, rateLimitedError{}
			case resp.StatusCode >= 500:
				resp.Body.Close()
				return nil, &serverError{statusCode: resp.StatusCode}
			}

			return &responseCapture{resp: resp}, nil
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			// 429, 5xx, and transport errors are retryable.
			return err
		}

		resp := capture.resp
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			resp.Body.Close()
			return backoff.Permanent(ErrUnauthorized)
		case resp.StatusCode >= 400:
			code := resp.StatusCode
			resp.Body.Close()
			return backoff.Permanent(&StatusError{StatusCode: code})
		}

		result = resp
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	return result, nil
}

// BreakerState returns the current circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// BreakerCounts returns the current circuit breaker counts.
func (c *Client) BreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}
