// Package callgate wraps outbound dependency calls with a timeout, an
// optional fallback, and per-dependency circuit breaking. Every biller,
// fraud, and bin-routing call the orchestrator makes goes through a Gate.
package callgate

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// Settings configures the breakers a Gate creates.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that trips a
	// breaker from closed to open.
	FailureThreshold uint32
	// CoolDown is how long a breaker stays open before allowing the single
	// half-open trial call.
	CoolDown time.Duration
	// DefaultTimeout applies when a caller passes no per-call timeout.
	DefaultTimeout time.Duration
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 5,
		CoolDown:         30 * time.Second,
		DefaultTimeout:   10 * time.Second,
	}
}

// Gate holds one circuit breaker per dependency identifier. It is shared
// process-wide; breaker state is long-lived and independent of any single
// purchase.
type Gate struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
	settings Settings
}

// New creates a Gate with the given breaker settings.
func New(s Settings) *Gate {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = DefaultSettings().FailureThreshold
	}
	if s.CoolDown <= 0 {
		s.CoolDown = DefaultSettings().CoolDown
	}
	if s.DefaultTimeout <= 0 {
		s.DefaultTimeout = DefaultSettings().DefaultTimeout
	}
	return &Gate{
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		settings: s,
	}
}

func (g *Gate) breaker(dependencyID string) *gobreaker.CircuitBreaker[any] {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.breakers[dependencyID]; ok {
		return b
	}
	threshold := g.settings.FailureThreshold
	b := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        dependencyID,
		MaxRequests: 1, // exactly one trial call while half-open
		Timeout:     g.settings.CoolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	g.breakers[dependencyID] = b
	return b
}

// State returns the breaker state for a dependency. Dependencies that have
// never been called report closed.
func (g *Gate) State(dependencyID string) gobreaker.State {
	return g.breaker(dependencyID).State()
}

// States snapshots the state of every known breaker, for metrics.
func (g *Gate) States() map[string]gobreaker.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]gobreaker.State, len(g.breakers))
	for id, b := range g.breakers {
		out[id] = b.State()
	}
	return out
}

// Invoke runs fn under the dependency's breaker with the given timeout.
// A call exceeding the timeout counts as a breaker failure. When the call
// cannot produce a value — the circuit is open, the call timed out, or fn
// returned an error — the fallback is returned instead if one was supplied;
// an open circuit with no fallback yields ErrCircuitOpen.
func Invoke[T any](g *Gate, ctx context.Context, dependencyID string, timeout time.Duration, fallback *T, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		timeout = g.settings.DefaultTimeout
	}

	res, err := g.breaker(dependencyID).Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		type result struct {
			value T
			err   error
		}
		done := make(chan result, 1)
		go func() {
			v, err := fn(callCtx)
			done <- result{value: v, err: err}
		}()

		select {
		case <-callCtx.Done():
			return nil, fmt.Errorf("%s: %w", dependencyID, errors.ErrDependencyTimeout)
		case r := <-done:
			if r.err != nil {
				return nil, r.err
			}
			return r.value, nil
		}
	})
	if err != nil {
		if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
			if fallback != nil {
				return *fallback, nil
			}
			return zero, fmt.Errorf("%s: %w", dependencyID, errors.ErrCircuitOpen)
		}
		if fallback != nil {
			return *fallback, nil
		}
		return zero, err
	}

	value, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected result type %T", dependencyID, res)
	}
	return value, nil
}
