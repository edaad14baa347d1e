// Package resilience guards calls to the destination configuration service
// with a circuit breaker and a timeout. Retry policy lives with the callers
// that need it; the cache engine itself never retries.
package resilience

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCircuitOpen is returned without attempting the call while the
	// breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker open")

	// ErrTimeout is returned when the call exceeds the configured timeout.
	ErrTimeout = errors.New("resilience: operation timed out")
)

// Config tunes an Executor. The zero value selects the defaults.
type Config struct {
	// Timeout bounds each call. Default 10 seconds.
	Timeout time.Duration

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before a probe call
	// is allowed through. Default 30 seconds.
	ResetTimeout time.Duration

	// IsFailure decides whether an error counts against the breaker.
	// Defaults to counting every non-nil error. Callers exclude errors
	// that prove the backend is healthy, such as "not found".
	IsFailure func(err error) bool
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.IsFailure == nil {
		c.IsFailure = func(err error) bool { return err != nil }
	}
	return c
}

// Executor runs operations under a timeout and a circuit breaker.
type Executor struct {
	config  Config
	breaker *breaker
}

// NewExecutor creates an executor with the given configuration.
func NewExecutor(config Config) *Executor {
	config = config.withDefaults()
	return &Executor{
		config:  config,
		breaker: newBreaker(config),
	}
}

// Execute runs op with the configured timeout, recording the outcome with
// the circuit breaker. While the breaker is open, ErrCircuitOpen is returned
// immediately.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := e.breaker.allow(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	err := op(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = ErrTimeout
	}

	e.breaker.record(err)
	return err
}
