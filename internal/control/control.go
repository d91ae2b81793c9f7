// Package control funnels operator signals from every producer (hotkeys, the
// HTTP surface, voice commands) into a single buffered channel and dispatches
// them to the scheduler and the responder. Producers call [Router.Send] from
// any goroutine; the dispatch loop is the only consumer.
package control

import (
	"context"
	"errors"
	"log/slog"
)

// Signal identifies one operator action.
type Signal int

const (
	// SignalPlayNext force-advances the queue by one item.
	SignalPlayNext Signal = iota

	// SignalSkip cancels the clip currently playing.
	SignalSkip

	// SignalReplayLast replays the most recent history entry.
	SignalReplayLast

	// SignalPauseToggle flips the operator pause.
	SignalPauseToggle

	// SignalAsk starts the ask-the-assistant mic flow.
	SignalAsk

	// SignalSummarize voices a summary of recent chat.
	SignalSummarize

	// SignalRespond reacts to the recent chat messages without the mic.
	SignalRespond
)

var signalNames = map[Signal]string{
	SignalPlayNext:    "play-next",
	SignalSkip:        "skip",
	SignalReplayLast:  "replay-last",
	SignalPauseToggle: "pause-toggle",
	SignalAsk:         "ask",
	SignalSummarize:   "summarize",
	SignalRespond:     "respond",
}

// String returns the wire name of the signal, as accepted by the HTTP surface.
func (s Signal) String() string {
	if n, ok := signalNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseSignal maps a wire name back to its Signal.
func ParseSignal(name string) (Signal, bool) {
	for s, n := range signalNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

// Core is the scheduler surface the router drives.
type Core interface {
	RequestAdvance()
	SkipCurrent()
	TogglePause() bool
	ReplayLast(ctx context.Context) error
}

// Responder runs the chat-reaction flows. Implementations are expected to
// guard themselves against concurrent invocation (the scheduler's transient
// lock serves that).
type Responder interface {
	Ask(ctx context.Context) error
	Summarize(ctx context.Context) error
	RespondToChat(ctx context.Context) error
}

// Router owns the signal channel and the dispatch loop.
type Router struct {
	core      Core
	responder Responder
	signals   chan Signal
}

// NewRouter creates a Router with a buffer of bufSize pending signals
// (minimum 1).
func NewRouter(core Core, responder Responder, bufSize int) *Router {
	if bufSize < 1 {
		bufSize = 1
	}
	return &Router{
		core:      core,
		responder: responder,
		signals:   make(chan Signal, bufSize),
	}
}

// Send enqueues a signal without blocking. It reports false when the buffer
// is full, which only happens if the dispatch loop is not running.
func (r *Router) Send(sig Signal) bool {
	select {
	case r.signals <- sig:
		return true
	default:
		slog.Warn("control signal dropped, buffer full", "signal", sig.String())
		return false
	}
}

// Run dispatches signals until ctx is cancelled. Signals that start playback
// of their own (replay, ask, summarize, respond) run in their own goroutine
// so a skip signal can still get through while they are audible; collisions
// between them are refused by the scheduler's playback and transient guards.
func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-r.signals:
			r.dispatch(ctx, sig)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, sig Signal) {
	slog.Debug("control signal", "signal", sig.String())
	switch sig {
	case SignalPlayNext:
		r.core.RequestAdvance()
	case SignalSkip:
		r.core.SkipCurrent()
	case SignalPauseToggle:
		paused := r.core.TogglePause()
		slog.Info("queue pause toggled", "paused", paused)
	case SignalReplayLast:
		go r.runLogged(ctx, sig, r.core.ReplayLast)
	case SignalAsk:
		go r.runLogged(ctx, sig, r.responder.Ask)
	case SignalSummarize:
		go r.runLogged(ctx, sig, r.responder.Summarize)
	case SignalRespond:
		go r.runLogged(ctx, sig, r.responder.RespondToChat)
	default:
		slog.Warn("unhandled control signal", "signal", int(sig))
	}
}

func (r *Router) runLogged(ctx context.Context, sig Signal, fn func(context.Context) error) {
	if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("control action failed", "signal", sig.String(), "err", err)
	}
}
