package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned once every entry in a [FallbackGroup] has either
// failed or has its circuit breaker open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the circuit breaker built for every entry added
// to a [FallbackGroup]. Each entry gets its own breaker instance; only the
// tuning (not the state) is shared.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// fallbackEntry is one provider in a group, paired with the breaker that
// decides whether it's currently worth trying.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup orders a primary ahead of zero or more same-typed fallbacks.
// [FallbackGroup.Execute] walks the list and stops at the first entry whose
// breaker is closed (or half-open and willing to probe) and whose call
// succeeds; a tripped or failing entry is skipped in favor of the next one.
//
// Execute and ExecuteWithResult are safe for concurrent use. AddFallback is
// not synchronized with them.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup builds a group with primary as entry zero. Use
// [FallbackGroup.AddFallback] to register anything that should be tried
// after it.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.entries = []fallbackEntry[T]{g.newEntry(primaryName, primary)}
	return g
}

// AddFallback registers fallback to be tried, in order, after every entry
// already in the group.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	fg.entries = append(fg.entries, fg.newEntry(name, fallback))
}

func (fg *FallbackGroup[T]) newEntry(name string, value T) fallbackEntry[T] {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	return fallbackEntry[T]{name: name, value: value, breaker: NewCircuitBreaker(cbCfg)}
}

// Execute runs fn against each entry's value in turn until one call returns
// without error. Entries whose breaker is open are skipped without being
// called at all. If no entry succeeds, the returned error wraps
// [ErrAllFailed] along with whatever the last entry tried returned.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	var lastErr error
	for i := range fg.entries {
		entry := &fg.entries[i]
		err := entry.breaker.Execute(func() error { return fn(entry.value) })
		if err == nil {
			return nil
		}
		lastErr = err
		logFallbackAttempt(entry.name, err)
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// ExecuteWithResult is [FallbackGroup.Execute] for functions that also
// produce a value, expressed as a free function since Go methods cannot
// introduce their own type parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var lastErr error
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(entry.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		logFallbackAttempt(entry.name, err)
	}
	var zero R
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

func logFallbackAttempt(providerName string, err error) {
	if errors.Is(err, ErrCircuitOpen) {
		slog.Debug("fallback entry skipped, circuit open", "provider", providerName)
		return
	}
	slog.Warn("fallback entry failed, trying next", "provider", providerName, "error", err)
}
