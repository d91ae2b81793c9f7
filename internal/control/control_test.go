package control

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeCore struct {
	mu       sync.Mutex
	advances int
	skips    int
	toggles  int
	replays  int
}

func (c *fakeCore) RequestAdvance() {
	c.mu.Lock()
	c.advances++
	c.mu.Unlock()
}

func (c *fakeCore) SkipCurrent() {
	c.mu.Lock()
	c.skips++
	c.mu.Unlock()
}

func (c *fakeCore) TogglePause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toggles++
	return c.toggles%2 == 1
}

func (c *fakeCore) ReplayLast(context.Context) error {
	c.mu.Lock()
	c.replays++
	c.mu.Unlock()
	return nil
}

func (c *fakeCore) counts() (int, int, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advances, c.skips, c.toggles, c.replays
}

type fakeResponder struct {
	mu    sync.Mutex
	calls []string
}

func (r *fakeResponder) record(name string) error {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()
	return nil
}

func (r *fakeResponder) Ask(context.Context) error           { return r.record("ask") }
func (r *fakeResponder) Summarize(context.Context) error     { return r.record("summarize") }
func (r *fakeResponder) RespondToChat(context.Context) error { return r.record("respond") }

func (r *fakeResponder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatchRoutesCoreSignals(t *testing.T) {
	t.Parallel()

	core := &fakeCore{}
	r := NewRouter(core, &fakeResponder{}, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.Send(SignalPlayNext)
	r.Send(SignalSkip)
	r.Send(SignalPauseToggle)
	r.Send(SignalReplayLast)

	waitFor(t, func() bool {
		a, s, p, rp := core.counts()
		return a == 1 && s == 1 && p == 1 && rp == 1
	})
}

func TestDispatchRoutesResponderSignals(t *testing.T) {
	t.Parallel()

	resp := &fakeResponder{}
	r := NewRouter(&fakeCore{}, resp, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.Send(SignalAsk)
	r.Send(SignalSummarize)
	r.Send(SignalRespond)

	waitFor(t, func() bool { return len(resp.recorded()) == 3 })
}

func TestSendDropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	// No dispatch loop running: the buffer fills and Send must not block.
	r := NewRouter(&fakeCore{}, &fakeResponder{}, 2)
	if !r.Send(SignalSkip) || !r.Send(SignalSkip) {
		t.Fatal("sends within the buffer must succeed")
	}
	if r.Send(SignalSkip) {
		t.Fatal("send into a full buffer must report a drop")
	}
}

func TestSignalNamesRoundTrip(t *testing.T) {
	t.Parallel()

	for _, sig := range []Signal{
		SignalPlayNext, SignalSkip, SignalReplayLast, SignalPauseToggle,
		SignalAsk, SignalSummarize, SignalRespond,
	} {
		parsed, ok := ParseSignal(sig.String())
		if !ok || parsed != sig {
			t.Fatalf("ParseSignal(%q) = %v, %v; want %v", sig.String(), parsed, ok, sig)
		}
	}
	if _, ok := ParseSignal("launch-ads"); ok {
		t.Fatal("unknown signal name must not parse")
	}
}
