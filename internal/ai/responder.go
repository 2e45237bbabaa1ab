package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/awaybot/internal/config"
	"github.com/edgard/awaybot/internal/logger"
	"github.com/edgard/awaybot/internal/metrics"
	"github.com/edgard/awaybot/internal/persona"
)

const unknownSender = "Someone"

// Responder generates replies in the owner's voice. GenerateReply never
// fails: every error becomes the fallback message.
type Responder struct {
	completer   Completer
	prompt      persona.Prompt
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	fallback    string

	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewResponder wraps completer. A nil completer puts the responder in
// degraded mode, which is logged once as a warning. m may be nil.
func NewResponder(cfg config.AIConfig, prompt persona.Prompt, completer Completer, m *metrics.Metrics, log *slog.Logger) *Responder {
	r := &Responder{
		completer:   completer,
		prompt:      prompt,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		fallback:    cfg.FallbackMessage,
		metrics:     m,
		log:         log.With("component", "responder"),
	}
	if completer == nil {
		r.log.Warn("No AI API key configured, every reply will be the fallback message")
	}
	return r
}

// Degraded reports whether replies are always the fallback message.
func (r *Responder) Degraded() bool {
	return r.completer == nil
}

// Backend names the completion backend, or "none" in degraded mode.
func (r *Responder) Backend() string {
	if r.completer == nil {
		return "none"
	}
	return r.completer.Name()
}

// GenerateReply makes a single completion attempt for turn.
func (r *Responder) GenerateReply(ctx context.Context, turn Turn) string {
	if r.completer == nil {
		r.observe("degraded", 0)
		return r.fallback
	}

	req := CompletionRequest{
		Model: r.model,
		Messages: []Message{
			{Role: RoleSystem, Content: r.prompt.Text},
			{Role: RoleUser, Content: UserPrompt(turn)},
		},
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := r.completer.Complete(callCtx, req)
	elapsed := time.Since(start)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		kind := Classify(err)
		r.observe(kind, elapsed)

		attrs := []any{
			"backend", r.completer.Name(),
			"failure", kind,
			"sender", turn.SenderName,
			"text_preview", logger.Truncate(turn.Text, 50),
			"duration", elapsed,
			"error", err,
		}
		if kind == FailureAuth {
			r.log.ErrorContext(ctx, "Completion rejected, the AI API key looks missing or invalid", attrs...)
		} else {
			r.log.WarnContext(ctx, "Completion failed, using fallback message", attrs...)
		}
		return r.fallback
	}

	r.observe("ok", elapsed)
	r.log.DebugContext(ctx, "Reply generated",
		"backend", r.completer.Name(),
		"persona_version", r.prompt.Version,
		"duration", elapsed)
	return strings.TrimSpace(reply)
}

func (r *Responder) observe(result string, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.ObserveAI(r.Backend(), result, elapsed)
}

// UserPrompt renders the user message for turn. Group turns ask for a
// shorter answer.
func UserPrompt(turn Turn) string {
	name := strings.TrimSpace(turn.SenderName)
	if name == "" {
		name = unknownSender
	}
	if turn.IsGroup {
		return fmt.Sprintf("In a group chat, %s says: \"%s\". Respond briefly as you would.", name, turn.Text)
	}
	return fmt.Sprintf("%s messages you: \"%s\". Respond as you would.", name, turn.Text)
}
