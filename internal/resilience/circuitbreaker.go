// Package resilience implements provider-level fault tolerance: a three-state
// circuit breaker and a generic failover group built on top of it.
//
// [CircuitBreaker] trips after a run of consecutive failures and rejects
// calls outright until a reset timeout passes, giving a struggling backend
// room to recover instead of being hammered with retries. [FallbackGroup]
// layers a list of same-typed providers (a primary plus ordered fallbacks)
// over individual breakers, so a tripped primary is bypassed in favor of the
// next healthy entry without the caller needing to know which one answered.
//
// [CircuitBreaker] is safe for concurrent use; so are FallbackGroup's
// Execute and ExecuteWithResult, but not its AddFallback.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// open and its reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is one of the three modes a [CircuitBreaker] can be in.
type State int

const (
	// StateClosed forwards every call through to fn.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen] until the reset
	// timeout has elapsed, at which point the next Execute call moves the
	// breaker to StateHalfOpen.
	StateOpen

	// StateHalfOpen allows a bounded number of probe calls through to test
	// whether the backend has recovered. Enough successes closes the
	// breaker again; a single failure sends it back to StateOpen.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero-value fields fall back
// to the defaults documented per field.
type CircuitBreakerConfig struct {
	// Name labels this breaker's log lines.
	Name string

	// MaxFailures is how many consecutive failures while closed trip the
	// breaker open. Default 5.
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before allowing a
	// half-open probe. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax bounds the probe calls allowed while half-open before the
	// breaker commits to closing or re-opening. Default 3.
	HalfOpenMax int
}

// CircuitBreaker is a closed → open → half-open breaker guarding calls to a
// single backend. The zero value is not usable; build one with
// [NewCircuitBreaker].
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu              sync.Mutex
	state           State
	consecutiveFail int
	lastFailure     time.Time
	halfOpenCalls   int
	halfOpenFails   int
}

// NewCircuitBreaker builds a breaker from cfg, applying defaults to any
// zero-value tuning fields.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		state:        StateClosed,
	}
}

// Execute calls fn if the breaker's current state allows it: immediately in
// StateClosed, not at all (returning [ErrCircuitOpen]) in StateOpen before
// the reset timeout, and as a bounded probe in StateHalfOpen. The outcome of
// fn feeds back into the breaker's state before Execute returns.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 0
		cb.halfOpenFails = 0
		slog.Info("circuit breaker entering half-open probe state", "name", cb.name)

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMax {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	probing := cb.state == StateHalfOpen
	if probing {
		cb.halfOpenCalls++
	}
	cb.mu.Unlock()

	callErr := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if callErr != nil {
		cb.recordFailure(probing)
	} else {
		cb.recordSuccess(probing)
	}
	return callErr
}

// recordFailure applies the outcome of one failed call. Caller must hold cb.mu.
func (cb *CircuitBreaker) recordFailure(probing bool) {
	cb.lastFailure = time.Now()

	if probing {
		cb.halfOpenFails++
		cb.state = StateOpen
		cb.consecutiveFail = cb.maxFailures
		slog.Warn("half-open probe failed, re-opening circuit", "name", cb.name)
		return
	}

	cb.consecutiveFail++
	if cb.consecutiveFail >= cb.maxFailures {
		cb.state = StateOpen
		slog.Warn("circuit breaker tripped open",
			"name", cb.name, "consecutive_failures", cb.consecutiveFail)
	}
}

// recordSuccess applies the outcome of one successful call. Caller must hold cb.mu.
func (cb *CircuitBreaker) recordSuccess(probing bool) {
	if !probing {
		cb.consecutiveFail = 0
		return
	}

	okProbes := cb.halfOpenCalls - cb.halfOpenFails
	if okProbes < cb.halfOpenMax {
		return
	}
	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.halfOpenCalls = 0
	cb.halfOpenFails = 0
	slog.Info("circuit breaker closed after clean probe run", "name", cb.name)
}

// State reports the breaker's current mode. An open breaker whose reset
// timeout has already elapsed reports StateHalfOpen even though the actual
// transition only happens inside the next Execute call — callers that just
// want to know "would a call go through" get the honest answer either way.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailure) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to StateClosed and zeroes every counter,
// regardless of what it was doing beforehand.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.halfOpenCalls = 0
	cb.halfOpenFails = 0
	slog.Info("circuit breaker reset", "name", cb.name)
}
