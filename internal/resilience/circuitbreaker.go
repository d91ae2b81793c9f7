// Package resilience provides circuit breaker and provider failover
// primitives for the synthesis pipeline.
//
// [CircuitBreaker] is a classic three-state breaker (closed → open →
// half-open). [FallbackGroup] composes multiple instances of any provider
// type with per-entry breakers; [SynthFallback] specialises the idea for TTS,
// where each backend carries its own voice configuration.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state.
	StateClosed State = iota

	// StateOpen rejects calls immediately with [ErrCircuitOpen] until the
	// reset timeout elapses.
	StateOpen

	// StateHalfOpen lets one probe call through; success closes the breaker,
	// failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures before the breaker
	// opens. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before allowing a
	// probe. Default: 30s.
	ResetTimeout time.Duration
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	tripped  bool
	probing  bool
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied
// configuration. Zero-value fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
	}
}

// Execute runs fn if the breaker allows it. While open it returns
// [ErrCircuitOpen] without calling fn; after the reset timeout a single probe
// call is let through.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.tripped {
		if time.Since(cb.openedAt) < cb.resetTimeout || cb.probing {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.probing = true
		slog.Info("circuit breaker probing", "name", cb.name)
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.probing = false
		if cb.tripped || cb.failures >= cb.maxFailures {
			if !cb.tripped {
				slog.Warn("circuit breaker opened",
					"name", cb.name, "consecutive_failures", cb.failures)
			}
			cb.tripped = true
			cb.openedAt = time.Now()
		}
		return err
	}

	if cb.tripped {
		slog.Info("circuit breaker closed after successful probe", "name", cb.name)
	}
	cb.failures = 0
	cb.tripped = false
	cb.probing = false
	return nil
}

// State returns the breaker's current [State]. An open breaker whose reset
// timeout has elapsed reports [StateHalfOpen]; the transition itself happens
// on the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case !cb.tripped:
		return StateClosed
	case time.Since(cb.openedAt) >= cb.resetTimeout:
		return StateHalfOpen
	default:
		return StateOpen
	}
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.tripped = false
	cb.probing = false
}
