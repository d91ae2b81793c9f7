package llm

import "sync"

// History is a bounded conversation log for the ask-the-assistant flow. It
// keeps appended messages within an approximate token budget by discarding
// the oldest exchanges first. Safe for concurrent use.
type History struct {
	mu        sync.Mutex
	msgs      []Message
	maxTokens int
}

// NewHistory creates a History holding at most roughly maxTokens of
// conversation (as measured by [EstimateTokens]).
func NewHistory(maxTokens int) *History {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &History{maxTokens: maxTokens}
}

// Append adds one message and trims the oldest messages until the history
// fits the budget again. The most recent message is always kept, even when
// it alone exceeds the budget.
func (h *History) Append(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, Message{Role: role, Content: content})
	for len(h.msgs) > 1 && EstimateTokens(h.msgs) > h.maxTokens {
		h.msgs = h.msgs[1:]
	}
}

// Messages returns a copy of the current history in order.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Reset drops the whole history.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = nil
}
