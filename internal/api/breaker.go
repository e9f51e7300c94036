package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"resumereview/internal/config"
	reviewErrors "resumereview/internal/errors"
	"resumereview/internal/observability"

	"github.com/sony/gobreaker/v2"
)

// serviceBreaker wraps calls to one service endpoint with the circuit
// breaker pattern. A nil breaker runs calls directly.
type serviceBreaker struct {
	cb *gobreaker.CircuitBreaker[*http.Response]
}

// newServiceBreaker creates a breaker for an operation, or nil when disabled
func newServiceBreaker(operation string, cfg config.CircuitBreakerConfig, logger *reviewErrors.Logger, metrics *observability.Metrics) *serviceBreaker {
	if !cfg.Enabled {
		return nil
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("service-%s", operation),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests &&
				failureRatio >= cfg.FailureThreshold
		},
		// A caller giving up is not a sign of an unhealthy service.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger != nil {
				logger.Warn("Circuit breaker state changed",
					"name", name,
					"operation", operation,
					"from", from.String(),
					"to", to.String(),
					"failure_threshold", cfg.FailureThreshold)
			}
			metrics.RecordBreakerTransition(context.Background(), name, from.String(), to.String())
		},
	}

	return &serviceBreaker{
		cb: gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

// Execute executes the provided function with circuit breaker protection
func (b *serviceBreaker) Execute(fn func() (*http.Response, error)) (*http.Response, error) {
	if b == nil || b.cb == nil {
		return fn()
	}
	return b.cb.Execute(fn)
}

// State returns the breaker state name
func (b *serviceBreaker) State() string {
	if b == nil || b.cb == nil {
		return "disabled"
	}
	return b.cb.State().String()
}

// IsHealthy returns true if the circuit breaker is in closed state
func (b *serviceBreaker) IsHealthy() bool {
	if b == nil || b.cb == nil {
		return true
	}
	return b.cb.State() == gobreaker.StateClosed
}
