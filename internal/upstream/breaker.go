// Package upstream provides the resilient HTTP layer under the arrival-data
// gateway: circuit breaking, bounded retry with exponential backoff, and the
// typed errors the gateway maps to its token and throttling logic.
package upstream

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig holds configuration for the circuit breaker.
type BreakerConfig struct {
	// Name identifies the breaker for logging/metrics.
	Name string

	// MaxRequests is the number of probe requests allowed in half-open state.
	// Default: 1
	MaxRequests uint32

	// Timeout is the period of open state before switching to half-open.
	// Default: 60 seconds
	Timeout time.Duration

	// ReadyToTrip determines when to trip the breaker. If nil, trips at a
	// 50% failure rate once 5 requests have been observed.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange is called when the breaker state changes.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns sensible defaults for an upstream breaker.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: defaultReadyToTrip,
	}
}

func defaultReadyToTrip(counts gobreaker.Counts) bool {
	failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
	return counts.Requests >= 5 && failureRatio >= 0.5
}

func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[*responseCapture] {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = cfg.OnStateChange
	}

	return gobreaker.NewCircuitBreaker[*responseCapture](settings)
}
