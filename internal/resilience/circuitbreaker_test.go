package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing() error    { return errBoom }
func succeeding() error { return nil }

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 3, ResetTimeout: time.Hour})
	for range 3 {
		if err := cb.Execute(failing); !errors.Is(err, errBoom) {
			t.Fatalf("Execute = %v; want errBoom", err)
		}
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v; want open", got)
	}
	if err := cb.Execute(succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute while open = %v; want ErrCircuitOpen", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 2, ResetTimeout: time.Hour})
	cb.Execute(failing)
	cb.Execute(succeeding)
	cb.Execute(failing)
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v; want closed (failures are consecutive)", got)
	}
}

func TestBreakerProbesAfterResetTimeout(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})
	cb.Execute(failing)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v; want open", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("state = %v; want half-open after timeout", got)
	}
	if err := cb.Execute(succeeding); err != nil {
		t.Fatalf("probe call = %v; want success", err)
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v; want closed after successful probe", got)
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})
	cb.Execute(failing)
	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(failing); !errors.Is(err, errBoom) {
		t.Fatalf("probe = %v; want errBoom", err)
	}
	if got := cb.State(); got != StateOpen {
		t.Fatalf("state = %v; want open after failed probe", got)
	}
}

func TestBreakerReset(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test", MaxFailures: 1, ResetTimeout: time.Hour})
	cb.Execute(failing)
	cb.Reset()
	if got := cb.State(); got != StateClosed {
		t.Fatalf("state = %v; want closed after Reset", got)
	}
	if err := cb.Execute(succeeding); err != nil {
		t.Fatalf("Execute after Reset = %v", err)
	}
}
