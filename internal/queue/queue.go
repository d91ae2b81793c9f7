// Package queue implements the two-lane playback queue at the heart of the
// co-host: a priority "event" lane that preempts the front of the queue and
// an ordinary "audio" lane drained strictly FIFO, plus an append-only play
// history used for replays.
//
// The queue owns the single is-playing flag that serialises access to the
// audio device and the on-screen avatar. Every code path that starts playback
// acquires it through one of the pop/replay/play methods below, and every path
// that ends playback (normal, cancelled or errored) must call
// [EventQueue.FinishPlayback]. All methods are safe for concurrent use.
package queue

import (
	"errors"
	"sync"
	"time"
)

// ErrPlaying is returned by the operator take-it-now operations when the
// playback slot is already held.
var ErrPlaying = errors.New("queue: an item is already playing")

// ErrOutOfRange is returned when an index does not name an existing item.
var ErrOutOfRange = errors.New("queue: index out of range")

// ErrNoHistory is returned by [EventQueue.ReplayLast] when nothing has been
// played yet.
var ErrNoHistory = errors.New("queue: play history is empty")

// Kind selects which lane a [Item] is admitted to.
type Kind int

const (
	// KindOrdinaryAudio is appended to the back of the queue and played FIFO.
	KindOrdinaryAudio Kind = iota

	// KindPriorityEvent is inserted at the front of the queue, ahead of any
	// ordinary audio and ahead of previously queued priority events.
	KindPriorityEvent
)

// String returns the human-readable lane name.
func (k Kind) String() string {
	switch k {
	case KindPriorityEvent:
		return "event"
	case KindOrdinaryAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Item is a single unit of potential playback. Items are created by producers
// only once their clip is fully synthesized and are immutable afterwards; the
// queue moves them between pending and played but never copies their backing
// audio file.
type Item struct {
	// Kind selects the queue lane.
	Kind Kind

	// AudioRef is the path of the synthesized or pre-recorded clip.
	AudioRef string

	// SourceUser is the display name that triggered the item, or a sentinel
	// such as "Anonymous".
	SourceUser string

	// Category is a free-form label ("Raid", "Bit Donation of 500", …) shown
	// on the control surface. Never used for dispatch.
	Category string

	// EnqueuedAt records admission time, for display only.
	EnqueuedAt time.Time
}

// EventQueue holds pending items, the play history, and the playing flag.
// The zero value is not usable; call [New].
type EventQueue struct {
	mu      sync.Mutex
	pending []Item
	played  []Item
	playing bool
}

// New returns an empty EventQueue.
func New() *EventQueue {
	return &EventQueue{}
}

// AddEvent inserts it at the front of the pending queue. Successive AddEvent
// calls therefore play in reverse arrival order: the newest priority event
// always takes position 0. This matches the behaviour the rest of the system
// depends on; do not change it to FIFO.
func (q *EventQueue) AddEvent(it Item) {
	if it.EnqueuedAt.IsZero() {
		it.EnqueuedAt = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append([]Item{it}, q.pending...)
}

// AddAudio appends it to the back of the pending queue.
func (q *EventQueue) AddAudio(it Item) {
	if it.EnqueuedAt.IsZero() {
		it.EnqueuedAt = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, it)
}

// IsNextPriority reports whether the item at the front of the queue is a
// priority event. It is false when the queue is empty.
func (q *EventQueue) IsNextPriority() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) > 0 && q.pending[0].Kind == KindPriorityEvent
}

// IsEmpty reports whether no items are pending.
func (q *EventQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0
}

// Len returns the number of pending items.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// IsPlaying reports whether an item is mid-playback.
func (q *EventQueue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// PopNext removes the front item, moves it to the play history, marks the
// queue as playing, and returns the item's audio reference. It returns
// ("", false) without mutating anything when the queue is empty.
//
// This is the only operation that moves an item from pending to played.
func (q *EventQueue) PopNext() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return "", false
	}
	it := q.pending[0]
	q.pending = q.pending[1:]
	q.played = append(q.played, it)
	q.playing = true
	return it.AudioRef, true
}

// ReplayLast claims the playback slot for a replay of the most recently
// played item and returns its audio reference. The history is not mutated.
// The check of the playing flag and the claim happen under one lock, so two
// racing callers can never both start a replay. Returns [ErrPlaying] while
// something is already playing and [ErrNoHistory] when nothing has been
// played yet.
func (q *EventQueue) ReplayLast() (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.playing {
		return "", ErrPlaying
	}
	if len(q.played) == 0 {
		return "", ErrNoHistory
	}
	q.playing = true
	return q.played[len(q.played)-1].AudioRef, nil
}

// PlayByIndex removes the pending item at index i, moves it to the play
// history, marks the queue as playing, and returns its audio reference.
//
// Unlike [EventQueue.PopNext] this is an operator "take it now" action, so it
// returns [ErrPlaying] while something is already playing rather than
// stealing the playback mutex from an in-flight item, and [ErrOutOfRange]
// when i does not name a pending item.
func (q *EventQueue) PlayByIndex(i int) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.playing {
		return "", ErrPlaying
	}
	if i < 0 || i >= len(q.pending) {
		return "", ErrOutOfRange
	}
	it := q.pending[i]
	q.pending = append(q.pending[:i], q.pending[i+1:]...)
	q.played = append(q.played, it)
	q.playing = true
	return it.AudioRef, nil
}

// ReplayByIndex returns the audio reference of the history item at index i
// and marks the queue as playing. The history is not mutated. Same guards as
// [EventQueue.PlayByIndex].
func (q *EventQueue) ReplayByIndex(i int) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.playing {
		return "", ErrPlaying
	}
	if i < 0 || i >= len(q.played) {
		return "", ErrOutOfRange
	}
	q.playing = true
	return q.played[i].AudioRef, nil
}

// TryMarkPlaying atomically claims the playback slot for an ad-hoc clip that
// never entered the queue (ask-the-assistant, voiced summaries). Returns false
// if something is already playing. Callers that receive true must call
// [EventQueue.FinishPlayback] when done.
func (q *EventQueue) TryMarkPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.playing {
		return false
	}
	q.playing = true
	return true
}

// RemoveByIndex deletes the item at index i from either the pending queue or
// the play history and returns its audio reference so the caller can delete
// the backing clip file. Returns ("", false) for an out-of-range index.
func (q *EventQueue) RemoveByIndex(i int, fromPlayed bool) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if fromPlayed {
		if i < 0 || i >= len(q.played) {
			return "", false
		}
		it := q.played[i]
		q.played = append(q.played[:i], q.played[i+1:]...)
		return it.AudioRef, true
	}
	if i < 0 || i >= len(q.pending) {
		return "", false
	}
	it := q.pending[i]
	q.pending = append(q.pending[:i], q.pending[i+1:]...)
	return it.AudioRef, true
}

// Clear drops all pending items. The play history is retained.
func (q *EventQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
}

// FinishPlayback clears the playing flag. Must be called exactly once per
// successful PopNext/ReplayLast/PlayByIndex/ReplayByIndex, on every exit
// path including cancellation and errors.
func (q *EventQueue) FinishPlayback() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.playing = false
}

// Pending returns a copy of the pending items, front first.
func (q *EventQueue) Pending() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.pending))
	copy(out, q.pending)
	return out
}

// Played returns a copy of the play history in play order.
func (q *EventQueue) Played() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.played))
	copy(out, q.played)
	return out
}
