package resilience

import (
	"errors"
	"testing"
	"time"
)

type countingProvider struct {
	calls int
	err   error
}

func (p *countingProvider) do() error {
	p.calls++
	return p.err
}

func groupConfig() FallbackConfig {
	return FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}}
}

func TestExecutePrefersPrimary(t *testing.T) {
	t.Parallel()

	primary := &countingProvider{}
	backup := &countingProvider{}
	fg := NewFallbackGroup(primary, "primary", groupConfig())
	fg.AddFallback("backup", backup)

	if err := fg.Execute(func(p *countingProvider) error { return p.do() }); err != nil {
		t.Fatalf("Execute = %v", err)
	}
	if primary.calls != 1 || backup.calls != 0 {
		t.Fatalf("calls = primary %d, backup %d; want 1, 0", primary.calls, backup.calls)
	}
}

func TestExecuteFallsBackOnFailure(t *testing.T) {
	t.Parallel()

	primary := &countingProvider{err: errBoom}
	backup := &countingProvider{}
	fg := NewFallbackGroup(primary, "primary", groupConfig())
	fg.AddFallback("backup", backup)

	if err := fg.Execute(func(p *countingProvider) error { return p.do() }); err != nil {
		t.Fatalf("Execute = %v; want backup to succeed", err)
	}
	if backup.calls != 1 {
		t.Fatalf("backup calls = %d; want 1", backup.calls)
	}
}

func TestExecuteAllFailed(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup(&countingProvider{err: errBoom}, "primary", groupConfig())
	fg.AddFallback("backup", &countingProvider{err: errBoom})

	err := fg.Execute(func(p *countingProvider) error { return p.do() })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("Execute = %v; want ErrAllFailed", err)
	}
}

func TestOpenBreakerSkipsEntry(t *testing.T) {
	t.Parallel()

	primary := &countingProvider{err: errBoom}
	backup := &countingProvider{}
	fg := NewFallbackGroup(primary, "primary", groupConfig())
	fg.AddFallback("backup", backup)

	run := func() { fg.Execute(func(p *countingProvider) error { return p.do() }) }
	run()
	run()
	// Primary's breaker (MaxFailures 2) is now open; further runs must not
	// touch it.
	callsBefore := primary.calls
	run()
	if primary.calls != callsBefore {
		t.Fatalf("primary called %d times after breaker opened", primary.calls-callsBefore)
	}
	if backup.calls != 3 {
		t.Fatalf("backup calls = %d; want 3", backup.calls)
	}
}

func TestExecuteWithResultReturnsValue(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup(&countingProvider{err: errBoom}, "primary", groupConfig())
	fg.AddFallback("backup", &countingProvider{})

	got, err := ExecuteWithResult(fg, func(p *countingProvider) (string, error) {
		if err := p.do(); err != nil {
			return "", err
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("ExecuteWithResult = %q, %v; want ok, nil", got, err)
	}
}
