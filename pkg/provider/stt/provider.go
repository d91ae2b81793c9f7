// Package stt defines the Provider interface for Speech-to-Text backends.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/Mizu36/maddieply/pkg/audio"
)

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts a recorded clip to text. It returns the transcript
	// with surrounding whitespace trimmed; an empty transcript is not an
	// error.
	Transcribe(ctx context.Context, clip *audio.Clip) (string, error)
}
