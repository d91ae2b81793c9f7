// Package mock provides a test double for the audio.Sink interface.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/Mizu36/maddieply/pkg/audio"
)

// PlayCall records a single invocation of Play.
type PlayCall struct {
	// Ctx is the context passed to Play.
	Ctx context.Context
	// Ref is the clip path passed to Play.
	Ref string
}

// Sink is a mock implementation of audio.Sink.
type Sink struct {
	mu sync.Mutex

	// PlayDuration is returned as the clip duration from Play.
	PlayDuration time.Duration

	// PlayErr, if non-nil, is returned from Play.
	PlayErr error

	// Block makes Play wait for ctx cancellation before returning ctx.Err(),
	// simulating an interrupted clip.
	Block bool

	// PlayCalls records every call to Play in order.
	PlayCalls []PlayCall

	// Closed reports whether Close was called.
	Closed bool
}

// Play records the call and returns PlayDuration, PlayErr. When Block is set
// it waits for ctx first.
func (s *Sink) Play(ctx context.Context, ref string) (time.Duration, error) {
	s.mu.Lock()
	s.PlayCalls = append(s.PlayCalls, PlayCall{Ctx: ctx, Ref: ref})
	block, d, err := s.Block, s.PlayDuration, s.PlayErr
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return d, ctx.Err()
	}
	return d, err
}

// Close records the call.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Calls returns a copy of the recorded Play calls.
func (s *Sink) Calls() []PlayCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PlayCall, len(s.PlayCalls))
	copy(out, s.PlayCalls)
	return out
}

var _ audio.Sink = (*Sink)(nil)
