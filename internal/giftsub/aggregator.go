// Package giftsub coalesces bursts of individual gift-subscription events
// into one combined announcement.
//
// The platform fires one event per gifted recipient, while the gifter's
// identity and declared total arrive on a separate, possibly earlier event.
// The aggregator opens a short-lived cache entry per gifter and appends
// recipients to the most recently opened, still-valid entry; when the
// declared count is reached the completed announcement is returned exactly
// once and the entry is deleted. Entries past the validity window are purged
// regardless of completion: an incomplete burst silently produces nothing,
// which is acceptable given at-least-once, possibly reordered delivery.
package giftsub

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultWindow is the validity window for an open cache entry.
const DefaultWindow = 10 * time.Second

// Announcement is a completed burst, ready for one combined voice line.
type Announcement struct {
	Gifter          string
	Recipients      []string
	Count           int
	Tier            string
	CumulativeTotal int
}

type entry struct {
	gifter     string
	recipients []string
	count      int
	tier       string
	cumulative int
	openedAt   time.Time
}

// Aggregator is the burst cache. Safe for concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	entries map[string]*entry
	window  time.Duration
	now     func() time.Time
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithWindow overrides the validity window.
func WithWindow(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.window = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New returns an empty Aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		entries: make(map[string]*entry),
		window:  DefaultWindow,
		now:     time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Open records a gifter-totals event, opening or refreshing the entry for
// that gifter. Keys are the lowercased gifter name so chat-line and EventSub
// spellings collapse to one entry.
func (a *Aggregator) Open(gifter string, count int, tier string, cumulative int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := strings.ToLower(gifter)
	if e, ok := a.entries[key]; ok && a.valid(e) {
		// Refresh: the gifter declared again before the first burst closed.
		e.count = count
		e.tier = tier
		e.cumulative = cumulative
		e.openedAt = a.now()
		return
	}
	a.entries[key] = &entry{
		gifter:     gifter,
		count:      count,
		tier:       tier,
		cumulative: cumulative,
		openedAt:   a.now(),
	}
}

// AddRecipient records one gifted-recipient event. The recipient is appended
// to the most recently opened, still-valid entry; recipient events carry no
// gifter identity of their own. When the entry's declared count is reached it
// is removed and returned. Returns (nil, false) while the burst is still
// accumulating and when no valid entry exists.
func (a *Aggregator) AddRecipient(recipient string) (*Announcement, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var (
		key    string
		newest *entry
	)
	for k, e := range a.entries {
		if !a.valid(e) {
			continue
		}
		if newest == nil || e.openedAt.After(newest.openedAt) {
			key, newest = k, e
		}
	}
	if newest == nil {
		slog.Debug("gift recipient with no open burst", "recipient", recipient)
		return nil, false
	}

	newest.recipients = append(newest.recipients, recipient)
	if len(newest.recipients) < newest.count {
		return nil, false
	}

	delete(a.entries, key)
	return &Announcement{
		Gifter:          newest.gifter,
		Recipients:      newest.recipients,
		Count:           newest.count,
		Tier:            newest.tier,
		CumulativeTotal: newest.cumulative,
	}, true
}

// Purge drops expired entries and returns how many were removed.
func (a *Aggregator) Purge() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	removed := 0
	for k, e := range a.entries {
		if !a.valid(e) {
			slog.Info("gift burst expired incomplete",
				"gifter", e.gifter,
				"received", len(e.recipients),
				"declared", e.count)
			delete(a.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of open entries, expired or not.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Run purges expired entries once per second until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) error {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			a.Purge()
		}
	}
}

func (a *Aggregator) valid(e *entry) bool {
	return a.now().Sub(e.openedAt) <= a.window
}
