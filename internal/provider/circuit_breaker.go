package provider

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/adflow/pipeline/internal/logging"
	"github.com/adflow/pipeline/internal/metrics"
	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/pipeline/errs"
)

// circuitBreaker wraps an Adapter's Extract call with a sony/gobreaker/v2
// breaker, opening after a 60% failure rate over at least 10 requests, the
// same thresholds the teacher applies to its upstream API clients.
type circuitBreaker struct {
	inner Adapter
	cb    *gobreaker.CircuitBreaker[Result]
}

// WithCircuitBreaker wraps adapter with failure-isolation: once open, calls
// fail fast with gobreaker.ErrOpenState (classified here as Transient) until
// the breaker's timeout elapses and a half-open probe succeeds.
func WithCircuitBreaker(adapter Adapter) Adapter {
	name := adapter.Name()
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("adapter", name).Str("from", fromStr).Str("to", toStr).
				Msg("provider circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &circuitBreaker{inner: adapter, cb: cb}
}

func (c *circuitBreaker) Name() string { return c.inner.Name() }

func (c *circuitBreaker) Extract(ctx context.Context, window model.Window) (Result, error) {
	result, err := c.cb.Execute(func() (Result, error) {
		return c.inner.Extract(ctx, window)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{}, errs.Wrap(errs.KindTransient, c.Name(), err)
		}
		return Result{}, err
	}
	return result, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
