// Package mock provides a test double for the stt.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/Mizu36/maddieply/pkg/audio"
	"github.com/Mizu36/maddieply/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Clip is the clip passed to Transcribe.
	Clip *audio.Clip
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// TranscribeResult is returned by Transcribe.
	TranscribeResult string

	// TranscribeErr, if non-nil, is returned from Transcribe.
	TranscribeErr error

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns TranscribeResult, TranscribeErr.
func (p *Provider) Transcribe(ctx context.Context, clip *audio.Clip) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Clip: clip})
	return p.TranscribeResult, p.TranscribeErr
}

var _ stt.Provider = (*Provider)(nil)
