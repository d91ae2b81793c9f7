package audio

import (
	"context"
	"time"
)

// Sink plays WAV clips on an output device.
//
// Implementations must be safe for concurrent use, though the scheduler's
// playback flag guarantees at most one Play is in flight at a time.
type Sink interface {
	// Play decodes the clip at ref and plays it, blocking until the clip
	// finishes or ctx is cancelled. It returns the clip's full duration even
	// when cancelled part-way through.
	Play(ctx context.Context, ref string) (time.Duration, error)

	// Close releases the underlying device.
	Close() error
}
