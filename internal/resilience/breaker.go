package resilience

import (
	"sync"
	"time"
)

// breakerState is the circuit state.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker is a consecutive-failure circuit breaker. Closed until MaxFailures
// failures in a row; open for ResetTimeout; then a single half-open probe
// decides between closing again and re-opening.
type breaker struct {
	config Config

	mu          sync.Mutex
	state       breakerState
	failures    int
	lastFailure time.Time
	probing     bool
}

func newBreaker(config Config) *breaker {
	return &breaker{config: config}
}

// allow reports whether a call may proceed, reserving the probe slot when
// half-open.
func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentStateLocked() {
	case stateOpen:
		return ErrCircuitOpen
	case stateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}

	return nil
}

// record feeds a call outcome back into the state machine.
func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := b.config.IsFailure(err)

	switch b.state {
	case stateClosed:
		if failed {
			b.failures++
			b.lastFailure = time.Now()
			if b.failures >= b.config.MaxFailures {
				b.state = stateOpen
			}
		} else {
			b.failures = 0
		}

	case stateHalfOpen:
		b.probing = false
		if failed {
			b.lastFailure = time.Now()
			b.state = stateOpen
		} else {
			b.state = stateClosed
			b.failures = 0
		}
	}
}

// currentStateLocked transitions open to half-open once the reset timeout
// has elapsed. Called with b.mu held.
func (b *breaker) currentStateLocked() breakerState {
	if b.state == stateOpen && time.Since(b.lastFailure) >= b.config.ResetTimeout {
		b.state = stateHalfOpen
		b.probing = false
	}
	return b.state
}
