package web

import (
	"sync"
	"time"
)

// ChatMessage is one entry of the web chat log.
type ChatMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsUser    bool      `json:"isUser"`
}

// History is the process-local chat log shared by every web visitor. In
// stateless mode it records nothing.
type History struct {
	mu        sync.Mutex
	messages  []ChatMessage
	limit     int
	stateless bool
}

// NewHistory creates a log keeping at most limit messages.
func NewHistory(mode string, limit int) *History {
	if limit < 1 {
		limit = 1
	}
	return &History{limit: limit, stateless: mode == "stateless"}
}

// Append adds msgs, dropping the oldest entries beyond the limit.
func (h *History) Append(msgs ...ChatMessage) {
	if h.stateless {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msgs...)
	if over := len(h.messages) - h.limit; over > 0 {
		h.messages = append([]ChatMessage(nil), h.messages[over:]...)
	}
}

// Messages returns a copy of the log, oldest first. It is never nil.
func (h *History) Messages() []ChatMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append(make([]ChatMessage, 0, len(h.messages)), h.messages...)
}

// Clear empties the log.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}
