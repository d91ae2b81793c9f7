// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g. ElevenLabs or Azure
// Cognitive Services) and renders a text response into a playable WAV clip on
// disk. Queue items reference clips by path, so Synthesize returns the path
// of the finished file.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned when the backend refuses synthesis because the
// account's character or request quota is spent. The resilience layer treats
// it like any other failure: fall back to the backup provider.
var ErrQuotaExceeded = errors.New("tts: quota exceeded")

// VoiceProfile describes a synthesis voice configuration.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (style, rate, etc.).
	Metadata map[string]string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice and writes the result as a
	// 16-bit PCM WAV file, returning its path. The file is complete when
	// Synthesize returns; callers may enqueue the path immediately.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (string, error)

	// Name identifies the provider in logs and config.
	Name() string
}
