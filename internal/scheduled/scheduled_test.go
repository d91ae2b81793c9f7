package scheduled

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSender) Send(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestStartRequiresATrigger(t *testing.T) {
	t.Parallel()

	r := NewRunner(&recordingSender{})
	if err := r.Start(t.Context(), Message{ID: "m1", Text: "hi"}); err == nil {
		t.Fatal("expected an error for a message with no trigger")
	}
}

func TestTimerOnlyPostsRepeatedly(t *testing.T) {
	t.Parallel()

	s := &recordingSender{}
	r := NewRunner(s)
	err := r.Start(t.Context(), Message{ID: "m1", Text: "follow me", Every: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return s.count() >= 2 })
}

func TestCountOnlyPostsWhenChatIsActive(t *testing.T) {
	t.Parallel()

	s := &recordingSender{}
	r := NewRunner(s, WithPoll(10*time.Millisecond))
	err := r.Start(t.Context(), Message{ID: "m1", Text: "socials link", MinMessages: 3})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if s.count() != 0 {
		t.Fatal("must not post before the message count is reached")
	}
	for i := 0; i < 3; i++ {
		r.CountMessage()
	}
	waitFor(t, func() bool { return s.count() == 1 })

	// The counter resets after posting.
	time.Sleep(50 * time.Millisecond)
	if s.count() != 1 {
		t.Fatalf("posts = %d; counter must reset after a post", s.count())
	}
}

func TestCombinedSkipsQuietChat(t *testing.T) {
	t.Parallel()

	s := &recordingSender{}
	r := NewRunner(s)
	err := r.Start(t.Context(), Message{
		ID: "m1", Text: "hydrate", Every: 20 * time.Millisecond, MinMessages: 2,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if s.count() != 0 {
		t.Fatal("quiet chat must suppress the timed post")
	}

	r.CountMessage()
	r.CountMessage()
	waitFor(t, func() bool { return s.count() == 1 })
}

func TestCancelStopsPosting(t *testing.T) {
	t.Parallel()

	s := &recordingSender{}
	r := NewRunner(s)
	err := r.Start(t.Context(), Message{ID: "m1", Text: "spam", Every: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return s.count() >= 1 })

	if !r.Cancel("m1") {
		t.Fatal("Cancel must report the task was running")
	}
	if r.Running("m1") {
		t.Fatal("task still reported running after Cancel")
	}
	n := s.count()
	time.Sleep(50 * time.Millisecond)
	if s.count() != n {
		t.Fatal("posts continued after Cancel")
	}
	if r.Cancel("m1") {
		t.Fatal("second Cancel must report nothing running")
	}
}

func TestDuplicateStartIsRefused(t *testing.T) {
	t.Parallel()

	r := NewRunner(&recordingSender{})
	msg := Message{ID: "m1", Text: "x", Every: time.Hour}
	if err := r.Start(t.Context(), msg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(t.Context(), msg); err == nil {
		t.Fatal("expected duplicate Start to fail")
	}
}

func TestToggleFlipsRunningState(t *testing.T) {
	t.Parallel()

	r := NewRunner(&recordingSender{})
	msg := Message{ID: "m1", Text: "x", Every: time.Hour}

	running, err := r.Toggle(t.Context(), msg)
	if err != nil || !running {
		t.Fatalf("first Toggle = %v, %v; want running", running, err)
	}
	running, err = r.Toggle(t.Context(), msg)
	if err != nil || running {
		t.Fatalf("second Toggle = %v, %v; want stopped", running, err)
	}
}
