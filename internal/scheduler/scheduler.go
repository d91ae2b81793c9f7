// Package scheduler runs the playback event loop: a single goroutine that
// decides, each tick, whether to start the next queued clip, honour a
// force-advance or skip request, or idle.
//
// The loop has two modes. In automatic mode the two-lane queue drains itself:
// a priority event at the front always plays next, a force-advance request
// plays the front item regardless of pause, and otherwise the queue drains in
// order subject to the operator pause and a configurable cooldown between
// plays. With automatic mode disabled the legacy behaviour applies: strict
// FIFO draining subject to pause, where force-advance is the one documented
// way to push an item through while paused.
//
// Control methods (RequestAdvance, SkipCurrent, SetPaused, BeginTransient,
// …) may be called from any goroutine; the loop itself is the only caller of
// the queue's PopNext.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mizu36/maddieply/internal/queue"
)

// State names the loop's current phase, for logs and the control surface.
type State int

const (
	StateIdle State = iota
	StateAwaitingNext
	StatePlaying
	StateCooldown
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingNext:
		return "awaiting-next"
	case StatePlaying:
		return "playing"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// ErrTransientActive is returned by BeginTransient when a transient action is
// already in progress. The pause save/restore is a single boolean, so nesting
// is refused rather than silently corrupting the restore state.
var ErrTransientActive = errors.New("scheduler: a transient action is already active")

// ErrBusy is returned by PlayAdHoc and ReplayLast when the playback slot is
// already held.
var ErrBusy = errors.New("scheduler: playback already in progress")

// Presenter performs the full "assistant responds" composite for one clip:
// avatar on, play audio while bouncing, avatar off. It must honour ctx
// cancellation by stopping audio and returning the avatar to rest.
type Presenter interface {
	Present(ctx context.Context, audioRef string) error
}

// Config holds the scheduler's tuning knobs. Zero values are replaced with
// the defaults noted on each field.
type Config struct {
	// Cooldown is the delay between automatic plays. Default 5s.
	Cooldown time.Duration

	// MinCooldown replaces Cooldown when a priority event is already waiting
	// at the front of the queue. Default 500ms.
	MinCooldown time.Duration

	// IdlePoll is the sleep between ticks with nothing to do. Default 100ms.
	IdlePoll time.Duration

	// PlayingPoll is the sleep between ticks while a clip is audible.
	// Default 250ms.
	PlayingPoll time.Duration

	// AutoQueue enables the automatic two-lane mode. When false the legacy
	// single-lane behaviour applies.
	AutoQueue bool
}

func (c *Config) applyDefaults() {
	if c.Cooldown <= 0 {
		c.Cooldown = 5 * time.Second
	}
	if c.MinCooldown <= 0 {
		c.MinCooldown = 500 * time.Millisecond
	}
	if c.IdlePoll <= 0 {
		c.IdlePoll = 100 * time.Millisecond
	}
	if c.PlayingPoll <= 0 {
		c.PlayingPoll = 250 * time.Millisecond
	}
}

// Scheduler owns the playback loop state. Create with [New], start with
// [Scheduler.Run].
type Scheduler struct {
	q       *queue.EventQueue
	present Presenter

	mu              sync.Mutex
	cfg             Config
	state           State
	paused          bool
	forceAdvance    bool
	cancelCurrent   context.CancelFunc
	transientActive bool
	pausedBefore    bool
}

// New creates a Scheduler draining q through p.
func New(q *queue.EventQueue, p Presenter, cfg Config) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{q: q, present: p, cfg: cfg}
}

// Run executes the playback loop until ctx is cancelled. It never returns an
// error other than ctx.Err(): a failed clip is logged and the loop resumes.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.tick(ctx)
	}
}

// tick performs one scheduling decision and the sleep that follows it.
func (s *Scheduler) tick(ctx context.Context) {
	if s.q.IsPlaying() {
		s.setState(StatePlaying)
		sleep(ctx, s.config().PlayingPoll)
		return
	}
	s.setState(StateAwaitingNext)

	if s.config().AutoQueue {
		s.tickAuto(ctx)
		return
	}
	s.tickLegacy(ctx)
}

// tickAuto implements the automatic two-lane mode. Decision precedence:
// priority lane, then force-advance, then plain automatic draining.
func (s *Scheduler) tickAuto(ctx context.Context) {
	cfg := s.config()
	switch {
	case s.q.IsNextPriority():
		slog.Debug("priority event at front, playing next")
		s.playNext(ctx)
		s.cooldown(ctx)

	// The emptiness check comes first so a play-next pressed before anything
	// is queued stays armed until an item arrives.
	case !s.q.IsEmpty() && s.consumeForceAdvance():
		slog.Debug("play-next requested, playing next item")
		s.playNext(ctx)
		s.cooldown(ctx)

	case !s.Paused() && !s.q.IsEmpty():
		s.playNext(ctx)
		s.cooldown(ctx)

	default:
		s.setState(StateIdle)
		sleep(ctx, cfg.IdlePoll)
	}
}

// tickLegacy implements the single-lane mode: strict FIFO subject to pause.
// A force-advance request pushes one item through even while paused.
func (s *Scheduler) tickLegacy(ctx context.Context) {
	cfg := s.config()
	if s.q.IsEmpty() {
		s.setState(StateIdle)
		sleep(ctx, cfg.Cooldown)
		return
	}
	if s.consumeForceAdvance() {
		s.playNext(ctx)
		s.cooldown(ctx)
		return
	}
	if s.Paused() {
		slog.Debug("queue paused, holding")
		sleep(ctx, cfg.IdlePoll)
		return
	}
	s.playNext(ctx)
	s.cooldown(ctx)
}

// playNext pops the front item and presents it. The playing flag is released
// on every exit path; a failed or cancelled clip never stalls the loop.
func (s *Scheduler) playNext(ctx context.Context) {
	ref, ok := s.q.PopNext()
	if !ok {
		return
	}
	s.setState(StatePlaying)
	s.presentClip(ctx, ref)
}

// presentClip runs the presenter for one clip under a cancellable context so
// a skip signal can interrupt it, then clears the playback flag.
func (s *Scheduler) presentClip(ctx context.Context, ref string) {
	playCtx, cancel := context.WithCancel(ctx)
	s.setCancel(cancel)

	err := s.present.Present(playCtx, ref)

	s.setCancel(nil)
	cancel()
	s.q.FinishPlayback()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		slog.Debug("playback cancelled", "audio", ref)
	default:
		slog.Error("playback failed", "audio", ref, "err", err)
	}
}

// cooldown applies the inter-event delay, shortened to MinCooldown when a
// priority event is already waiting so priority content is not throttled.
func (s *Scheduler) cooldown(ctx context.Context) {
	s.setState(StateCooldown)
	cfg := s.config()
	d := cfg.Cooldown
	if s.q.IsNextPriority() {
		d = cfg.MinCooldown
	}
	sleep(ctx, d)
	s.setState(StateAwaitingNext)
}

// ─── Control surface ─────────────────────────────────────────────────────────

// RequestAdvance arms the one-shot force-advance flag. Re-arming while a
// request is already pending is a no-op, so rapid repeated signals advance
// exactly one item.
func (s *Scheduler) RequestAdvance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceAdvance = true
}

// consumeForceAdvance atomically reads and clears the force-advance flag.
func (s *Scheduler) consumeForceAdvance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.forceAdvance
	s.forceAdvance = false
	return was
}

// SkipCurrent cancels the in-flight playback, if any. The presenter unwinds
// the audio sink and the avatar; the loop resumes without a cooldown.
func (s *Scheduler) SkipCurrent() {
	s.mu.Lock()
	cancel := s.cancelCurrent
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// SetPaused sets the operator pause flag.
func (s *Scheduler) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// TogglePause flips the operator pause flag and returns the new value.
func (s *Scheduler) TogglePause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = !s.paused
	return s.paused
}

// Paused reports the operator pause flag.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// State reports the loop's current phase.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reconfigure applies a new cooldown and auto-queue setting. Takes effect on
// the next tick; the in-flight clip is unaffected.
func (s *Scheduler) Reconfigure(cooldown time.Duration, autoQueue bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cooldown > 0 {
		s.cfg.Cooldown = cooldown
	}
	s.cfg.AutoQueue = autoQueue
}

// ─── Transient actions ───────────────────────────────────────────────────────

// BeginTransient pauses automatic advancement for the duration of a transient
// action (ask-the-assistant, voiced summary) and returns a restore func that
// puts the pause flag back to whatever the operator had set. If the queue was
// already paused it stays paused after the restore.
//
// Only one transient action may be active at a time; a second call before the
// restore runs returns [ErrTransientActive].
func (s *Scheduler) BeginTransient() (restore func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transientActive {
		return nil, ErrTransientActive
	}
	s.transientActive = true
	s.pausedBefore = s.paused
	s.paused = true

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.paused = s.pausedBefore
		s.transientActive = false
	}, nil
}

// PlayAdHoc presents a clip that never entered the queue, claiming the
// playback slot first. Returns [ErrBusy] if something is already audible.
func (s *Scheduler) PlayAdHoc(ctx context.Context, ref string) error {
	if !s.q.TryMarkPlaying() {
		return ErrBusy
	}
	s.presentClip(ctx, ref)
	return nil
}

// ReplayLast replays the most recent history entry under a transient pause.
// The playback slot is claimed atomically by the queue, so a replay racing
// the loop's own pop can never produce two concurrent presentations. Returns
// nil when the history is empty (nothing to do), [ErrBusy] when the slot is
// held, or the transient-nesting error.
func (s *Scheduler) ReplayLast(ctx context.Context) error {
	restore, err := s.BeginTransient()
	if err != nil {
		return err
	}
	defer restore()

	ref, err := s.q.ReplayLast()
	switch {
	case errors.Is(err, queue.ErrNoHistory):
		return nil
	case errors.Is(err, queue.ErrPlaying):
		return ErrBusy
	case err != nil:
		return fmt.Errorf("scheduler: replay last: %w", err)
	}
	s.presentClip(ctx, ref)
	return nil
}

// ReplayByIndex replays the history entry at index i. Returns [ErrBusy] while
// anything is playing and the queue's out-of-range error for a bad index.
func (s *Scheduler) ReplayByIndex(ctx context.Context, i int) error {
	ref, err := s.q.ReplayByIndex(i)
	if err != nil {
		return fmt.Errorf("scheduler: replay index %d: %w", i, indexErr(err))
	}
	s.presentClip(ctx, ref)
	return nil
}

// PlayByIndex jumps the queue: plays the pending item at index i. Returns
// [ErrBusy] while anything is playing and the queue's out-of-range error for
// a bad index.
func (s *Scheduler) PlayByIndex(ctx context.Context, i int) error {
	ref, err := s.q.PlayByIndex(i)
	if err != nil {
		return fmt.Errorf("scheduler: play index %d: %w", i, indexErr(err))
	}
	s.presentClip(ctx, ref)
	return nil
}

// indexErr maps the queue's busy error onto [ErrBusy] so callers can tell a
// held playback slot (retryable) from a bad index (not retryable).
func indexErr(err error) error {
	if errors.Is(err, queue.ErrPlaying) {
		return ErrBusy
	}
	return err
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Scheduler) setCancel(c context.CancelFunc) {
	s.mu.Lock()
	s.cancelCurrent = c
	s.mu.Unlock()
}

func (s *Scheduler) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// sleep blocks for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
