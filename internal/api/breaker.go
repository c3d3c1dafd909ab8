package api

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBreakerOpen is returned while the breaker rejects calls.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerState is the position of a CircuitBreaker. The numeric values are
// exported as the breaker gauge.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

var breakerStateNames = [...]string{
	BreakerClosed:   "closed",
	BreakerHalfOpen: "half-open",
	BreakerOpen:     "open",
}

func (s BreakerState) String() string {
	if s < 0 || int(s) >= len(breakerStateNames) {
		return "unknown"
	}
	return breakerStateNames[s]
}

// breakerTransitions lists the legal moves between states.
var breakerTransitions = map[BreakerState][]BreakerState{
	BreakerClosed:   {BreakerOpen},
	BreakerOpen:     {BreakerHalfOpen},
	BreakerHalfOpen: {BreakerClosed, BreakerOpen},
}

// CircuitBreaker guards the backend. Closed, it counts consecutive
// transport failures and 5xx responses and opens at failureThreshold. Open,
// it rejects calls for cooldown, then goes half-open and lets probes
// through. Half-open, successThreshold consecutive successes close it and
// any failure reopens it. It is safe for concurrent use.
type CircuitBreaker struct {
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	now              func() time.Time

	mu       sync.Mutex
	state    BreakerState
	streak   int
	openedAt time.Time
	onChange func(BreakerState)
}

// NewCircuitBreaker creates a closed breaker. Non-positive arguments fall
// back to 5 failures, 1 success and a 30s cooldown.
func NewCircuitBreaker(failureThreshold, successThreshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: positiveOr(failureThreshold, 5),
		successThreshold: positiveOr(successThreshold, 1),
		cooldown:         cooldownOr(cooldown, 30*time.Second),
		now:              time.Now,
	}
}

func positiveOr(n, fallback int) int {
	if n < 1 {
		return fallback
	}
	return n
}

func cooldownOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// OnChange registers fn to receive every new state. fn runs with the
// breaker locked and must not call back into it.
func (cb *CircuitBreaker) OnChange(fn func(BreakerState)) {
	cb.mu.Lock()
	cb.onChange = fn
	cb.mu.Unlock()
}

// Allow reports whether a call may proceed. An open breaker whose cooldown
// has elapsed moves to half-open and allows the call as a probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != BreakerOpen {
		return nil
	}
	if cb.now().Sub(cb.openedAt) < cb.cooldown {
		return ErrBreakerOpen
	}
	cb.moveTo(BreakerHalfOpen)
	return nil
}

// RecordSuccess records a call that got a response below 500.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.streak = 0
	case BreakerHalfOpen:
		cb.streak++
		if cb.streak >= cb.successThreshold {
			cb.moveTo(BreakerClosed)
		}
	}
}

// RecordFailure records a transport failure or a 5xx response.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.streak++
		if cb.streak >= cb.failureThreshold {
			cb.moveTo(BreakerOpen)
		}
	case BreakerHalfOpen:
		cb.moveTo(BreakerOpen)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// moveTo changes state and resets the streak. Callers hold mu.
func (cb *CircuitBreaker) moveTo(to BreakerState) {
	legal := false
	for _, s := range breakerTransitions[cb.state] {
		legal = legal || s == to
	}
	if !legal {
		panic(fmt.Sprintf("api: illegal breaker transition %s -> %s", cb.state, to))
	}
	cb.state = to
	cb.streak = 0
	if to == BreakerOpen {
		cb.openedAt = cb.now()
	}
	if cb.onChange != nil {
		cb.onChange(to)
	}
}
