// Package scheduled posts recurring chat messages. A message can trigger on a
// timer, on a chat-activity count, or on both combined: the timer fires but
// the message is only posted when chat has been active enough, so a quiet
// stream is not spammed.
package scheduled

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sender posts one line to chat.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Message is one scheduled chat message.
type Message struct {
	// ID identifies the message for Cancel and Toggle.
	ID string

	// Text is the line posted to chat.
	Text string

	// Every is the timer interval. Zero means count-only triggering.
	Every time.Duration

	// MinMessages is the chat-activity trigger: the number of chat messages
	// that must have arrived since the last post. Zero means timer-only.
	MinMessages int
}

type task struct {
	msg     Message
	counter atomic.Int64
	cancel  context.CancelFunc
}

// Runner owns the scheduled message tasks. Safe for concurrent use.
type Runner struct {
	sender Sender
	poll   time.Duration

	mu    sync.Mutex
	tasks map[string]*task
}

// Option customises a Runner.
type Option func(*Runner)

// WithPoll overrides the count-only polling interval, for tests.
func WithPoll(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.poll = d
		}
	}
}

// NewRunner creates a Runner posting through sender.
func NewRunner(sender Sender, opts ...Option) *Runner {
	r := &Runner{
		sender: sender,
		poll:   time.Second,
		tasks:  make(map[string]*task),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// CountMessage records one chat message against every running task. Wire it
// as a chat message handler.
func (r *Runner) CountMessage() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		t.counter.Add(1)
	}
}

// Start launches msg's trigger loop. The loop runs until Cancel or ctx
// cancellation.
func (r *Runner) Start(ctx context.Context, msg Message) error {
	if msg.Every <= 0 && msg.MinMessages <= 0 {
		return fmt.Errorf("scheduled: message %q has no trigger", msg.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[msg.ID]; ok {
		return fmt.Errorf("scheduled: message %q already running", msg.ID)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	t := &task{msg: msg, cancel: cancel}
	r.tasks[msg.ID] = t
	go r.run(taskCtx, t)
	slog.Info("scheduled message started",
		"id", msg.ID, "every", msg.Every, "min_messages", msg.MinMessages)
	return nil
}

// Cancel stops the task with the given id. Reports whether one was running.
func (r *Runner) Cancel(id string) bool {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if ok {
		delete(r.tasks, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	slog.Info("scheduled message cancelled", "id", id)
	return true
}

// Toggle stops the task when running, otherwise starts it. Returns whether the
// task is running afterwards.
func (r *Runner) Toggle(ctx context.Context, msg Message) (running bool, err error) {
	if r.Cancel(msg.ID) {
		return false, nil
	}
	if err := r.Start(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}

// Running reports whether the task with the given id is active.
func (r *Runner) Running(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[id]
	return ok
}

// CancelAll stops every running task.
func (r *Runner) CancelAll() {
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = make(map[string]*task)
	r.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
	}
}

func (r *Runner) run(ctx context.Context, t *task) {
	switch {
	case t.msg.Every > 0 && t.msg.MinMessages > 0:
		r.runCombined(ctx, t)
	case t.msg.Every > 0:
		r.runTimer(ctx, t)
	default:
		r.runCounted(ctx, t)
	}
}

// runTimer posts on every tick.
func (r *Runner) runTimer(ctx context.Context, t *task) {
	tk := time.NewTicker(t.msg.Every)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			r.post(ctx, t)
		}
	}
}

// runCounted polls the chat counter and posts when the threshold is reached.
func (r *Runner) runCounted(ctx context.Context, t *task) {
	tk := time.NewTicker(r.poll)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			if t.counter.Load() >= int64(t.msg.MinMessages) {
				r.post(ctx, t)
				t.counter.Store(0)
			}
		}
	}
}

// runCombined posts on the timer only when chat has been active enough since
// the last post.
func (r *Runner) runCombined(ctx context.Context, t *task) {
	tk := time.NewTicker(t.msg.Every)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			if t.counter.Load() >= int64(t.msg.MinMessages) {
				r.post(ctx, t)
				t.counter.Store(0)
			} else {
				slog.Debug("timer elapsed but chat too quiet",
					"id", t.msg.ID, "count", t.counter.Load(), "needed", t.msg.MinMessages)
			}
		}
	}
}

func (r *Runner) post(ctx context.Context, t *task) {
	if err := r.sender.Send(ctx, t.msg.Text); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("scheduled message send failed", "id", t.msg.ID, "err", err)
	}
}
