// Package ai turns an inbound chat turn into a reply in the owner's voice.
// Provider backends implement Completer; Responder wraps one of them and
// absorbs every failure into the configured fallback text.
package ai

import "context"

// Role is the author of a prompt message.
type Role string

// Prompt roles understood by every backend.
const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is a single prompt message.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is a provider-neutral chat completion request.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Completer performs a single chat completion without retrying.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name identifies the backend in logs and metrics.
	Name() string
}

// Turn is the inbound message an auto-reply answers.
type Turn struct {
	SenderName string
	Text       string
	IsGroup    bool
}
