// Package stage performs the on-air presentation of one clip: slide the
// avatar in, play the audio while bouncing the avatar to the clip's volume
// envelope, slide the avatar back out. This is the Presenter the playback
// loop drives; cancelling the context (a skip) unwinds audio and animation
// together and still parks the avatar.
package stage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mizu36/maddieply/pkg/audio"
)

// Animator is the avatar surface the stage drives. *obs.Animator implements
// it; tests substitute a recorder.
type Animator interface {
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
	Bounce(ctx context.Context, envelope []float64, duration time.Duration) error
}

// Presenter plays clips with synchronized avatar animation.
type Presenter struct {
	sink audio.Sink
	anim Animator
}

// New creates a Presenter.
func New(sink audio.Sink, anim Animator) *Presenter {
	return &Presenter{sink: sink, anim: anim}
}

// Present runs the full composite for the clip at ref. Animation failures are
// logged but never block the audio: a dead OBS connection must not silence
// the co-host. The returned error reflects audio playback only;
// context.Canceled is passed through so the caller can tell a skip from a
// failure.
func (p *Presenter) Present(ctx context.Context, ref string) error {
	clip, err := audio.DecodeFile(ref)
	if err != nil {
		return err
	}
	envelope := clip.Envelope()

	if err := p.anim.Activate(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("avatar activation failed", "err", err)
	}
	defer func() {
		// The avatar must leave the screen even after a skip.
		offCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.anim.Deactivate(offCtx); err != nil {
			slog.Warn("avatar deactivation failed", "err", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := p.sink.Play(gctx, ref)
		return err
	})
	g.Go(func() error {
		if err := p.anim.Bounce(gctx, envelope, clip.Duration()); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("avatar bounce failed", "err", err)
		}
		return nil
	})
	return g.Wait()
}
