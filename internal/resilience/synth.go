package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Mizu36/maddieply/pkg/provider/tts"
)

// SynthBackend pairs a TTS provider with the voice it should speak in. The
// backup service does not carry the primary's voice catalogue, so each
// backend in the chain has its own voice configuration.
type SynthBackend struct {
	Provider tts.Provider
	Voice    tts.VoiceProfile
}

// SynthFallback renders text through an ordered chain of TTS backends. The
// primary is tried with its configured voice; on failure (including spent
// quota) the next backend is tried with its own fallback voice. When every
// backend fails the response is dropped and the caller only logs it, so a
// synthesis outage never stalls the playback loop.
type SynthFallback struct {
	backends []SynthBackend
	breakers []*CircuitBreaker
}

// NewSynthFallback creates a chain from the given backends, in order. At
// least one backend is required.
func NewSynthFallback(cfg FallbackConfig, backends ...SynthBackend) (*SynthFallback, error) {
	if len(backends) == 0 {
		return nil, errors.New("resilience: at least one synthesis backend required")
	}
	sf := &SynthFallback{backends: backends}
	for _, b := range backends {
		cbCfg := cfg.CircuitBreaker
		cbCfg.Name = "tts-" + b.Provider.Name()
		sf.breakers = append(sf.breakers, NewCircuitBreaker(cbCfg))
	}
	return sf, nil
}

// Synthesize renders text with the first healthy backend and returns the clip
// path. Returns [ErrAllFailed] (wrapped) when the whole chain is down.
func (sf *SynthFallback) Synthesize(ctx context.Context, text string) (string, error) {
	var lastErr error
	for i, b := range sf.backends {
		var path string
		err := sf.breakers[i].Execute(func() error {
			var innerErr error
			path, innerErr = b.Provider.Synthesize(ctx, text, b.Voice)
			return innerErr
		})
		if err == nil {
			if i > 0 {
				slog.Info("synthesized with backup voice",
					"provider", b.Provider.Name(), "voice", b.Voice.ID)
			}
			return path, nil
		}
		lastErr = err
		switch {
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("skipping synthesis backend (circuit open)",
				"provider", b.Provider.Name())
		case errors.Is(err, tts.ErrQuotaExceeded):
			slog.Warn("synthesis quota spent, trying next backend",
				"provider", b.Provider.Name())
		default:
			slog.Warn("synthesis failed, trying next backend",
				"provider", b.Provider.Name(), "error", err)
		}
	}
	return "", fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
