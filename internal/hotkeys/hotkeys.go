// Package hotkeys feeds operator signals into the control router from a
// line-oriented input, normally the terminal the bot runs in. The Listener
// interface keeps the input source swappable so a platform-specific global
// hotkey hook can replace the stdin reader without touching the router.
package hotkeys

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/Mizu36/maddieply/internal/control"
)

// Listener produces operator signals until its context is cancelled.
type Listener interface {
	Run(ctx context.Context) error
}

// DefaultBindings maps single-letter shortcuts to signals. Full wire names
// ("play-next", "skip", …) are always accepted in addition.
func DefaultBindings() map[string]control.Signal {
	return map[string]control.Signal{
		"n": control.SignalPlayNext,
		"s": control.SignalSkip,
		"r": control.SignalReplayLast,
		"p": control.SignalPauseToggle,
		"a": control.SignalAsk,
		"z": control.SignalSummarize,
		"c": control.SignalRespond,
	}
}

// LineListener reads one command per line and forwards the bound signal.
type LineListener struct {
	in       io.Reader
	bindings map[string]control.Signal
	send     func(control.Signal) bool
}

// NewLineListener creates a listener reading from in and forwarding signals
// through send (normally Router.Send). Nil bindings means DefaultBindings.
func NewLineListener(in io.Reader, bindings map[string]control.Signal, send func(control.Signal) bool) *LineListener {
	if bindings == nil {
		bindings = DefaultBindings()
	}
	return &LineListener{in: in, bindings: bindings, send: send}
}

var _ Listener = (*LineListener)(nil)

// Run reads lines until EOF or ctx cancellation. Unknown commands are logged
// and skipped.
func (l *LineListener) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(l.in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" {
			continue
		}
		sig, ok := l.bindings[line]
		if !ok {
			sig, ok = control.ParseSignal(line)
		}
		if !ok {
			slog.Debug("unknown hotkey command", "line", line)
			continue
		}
		l.send(sig)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return ctx.Err()
}
