// Package ingress applies the auto-reply policy to inbound chat events from
// any messaging connection and dispatches generated replies.
package ingress

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"

	"github.com/edgard/awaybot/internal/activity"
	"github.com/edgard/awaybot/internal/ai"
	"github.com/edgard/awaybot/internal/config"
	"github.com/edgard/awaybot/internal/logger"
	"github.com/edgard/awaybot/internal/metrics"
)

// Event is a platform-neutral inbound message.
type Event struct {
	ConversationID string
	SenderID       string
	SenderName     string
	Text           string
	IsGroup        bool
	FromOwner      bool
	// Channel is an opaque dispatch handle passed back in the Reply.
	Channel    string
	ReceivedAt time.Time
}

// Reply is an automated message to deliver.
type Reply struct {
	ConversationID string
	Text           string
	Channel        string
}

// OutcomeQueued is returned by Handle for an event accepted for reply. The
// final outcome is recorded once the reply is dispatched.
const OutcomeQueued = "queued"

// Presence is a typing indicator state.
type Presence string

const (
	PresenceComposing Presence = "composing"
	PresencePaused    Presence = "paused"
)

// Messenger delivers replies and typing indicators on one messaging connection.
type Messenger interface {
	Send(ctx context.Context, reply Reply) error
	SetPresence(ctx context.Context, conversationID, channel string, p Presence) error
}

// Responder generates reply text. It must not fail.
type Responder interface {
	GenerateReply(ctx context.Context, turn ai.Turn) string
}

// Deps holds the collaborators shared by every handler.
type Deps struct {
	Tracker   *activity.Tracker
	Responder Responder
	Clock     clockwork.Clock
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Handler filters the events of one messaging connection and replies to the
// eligible ones. Eligibility is decided synchronously in arrival order;
// generation and dispatch run on a bounded pool. Handle never waits for a
// free worker: accepted replies queue behind the busy ones.
type Handler struct {
	source    string
	messenger Messenger
	tracker   *activity.Tracker
	responder Responder
	clock     clockwork.Clock
	metrics   *metrics.Metrics
	log       *slog.Logger

	quiet          time.Duration
	skipGroups     bool
	typingPerChar  time.Duration
	typingMaxDelay time.Duration
	ignore         map[string]struct{}

	pool    *pool.Pool
	pending conc.WaitGroup
}

// NewHandler creates a handler named source that replies through messenger.
func NewHandler(source string, messenger Messenger, deps Deps, cfg config.AutoReplyConfig) *Handler {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	ignore := make(map[string]struct{}, len(cfg.IgnoreConversations))
	for _, id := range cfg.IgnoreConversations {
		ignore[id] = struct{}{}
	}

	workers := cfg.MaxConcurrentReplies
	if workers < 1 {
		workers = 1
	}

	return &Handler{
		source:         source,
		messenger:      messenger,
		tracker:        deps.Tracker,
		responder:      deps.Responder,
		clock:          clock,
		metrics:        deps.Metrics,
		log:            deps.Logger.With("component", "ingress", "source", source),
		quiet:          cfg.QuietPeriod,
		skipGroups:     cfg.SkipGroups,
		typingPerChar:  cfg.TypingPerChar,
		typingMaxDelay: cfg.TypingMaxDelay,
		ignore:         ignore,
		pool:           pool.New().WithMaxGoroutines(workers),
	}
}

// Handle applies the filter chain to ev and returns the outcome. An eligible
// event is queued for reply and Handle returns without waiting for it.
func (h *Handler) Handle(ctx context.Context, ev Event) string {
	log := h.log.With("conversation_id", ev.ConversationID, "sender_id", ev.SenderID)

	if strings.TrimSpace(ev.Text) == "" {
		log.DebugContext(ctx, "Ignoring event without text")
		return h.outcome(metrics.OutcomeEmpty)
	}
	if ev.IsGroup && h.skipGroups {
		log.DebugContext(ctx, "Ignoring group message")
		return h.outcome(metrics.OutcomeGroup)
	}

	now := h.clock.Now()
	if ev.FromOwner {
		h.tracker.RecordOwnerActivity(ev.ConversationID, now)
		log.DebugContext(ctx, "Owner activity recorded")
		return h.outcome(metrics.OutcomeOwner)
	}
	if _, ok := h.ignore[ev.ConversationID]; ok {
		log.DebugContext(ctx, "Conversation is excluded from auto-replies")
		return h.outcome(metrics.OutcomeIgnored)
	}

	if wait := h.tracker.TimeUntilEligible(ev.ConversationID, now, h.quiet); wait > 0 {
		log.InfoContext(ctx, "Owner recently active, not replying", "remaining", wait.Round(time.Second))
		return h.outcome(metrics.OutcomeNotEligible)
	}

	log.InfoContext(ctx, "Conversation quiet, generating auto-reply",
		"sender", ev.SenderName,
		"group", ev.IsGroup,
		"text_preview", logger.Truncate(ev.Text, 50))
	h.pending.Go(func() {
		h.pool.Go(func() {
			h.reply(ctx, ev, log)
		})
	})
	return OutcomeQueued
}

// Wait blocks until every queued reply has finished. The handler must not
// receive events afterwards.
func (h *Handler) Wait() {
	h.pending.Wait()
	h.pool.Wait()
}

func (h *Handler) reply(ctx context.Context, ev Event, log *slog.Logger) {
	h.setPresence(ctx, ev, PresenceComposing, log)
	defer h.setPresence(context.WithoutCancel(ctx), ev, PresencePaused, log)

	text := h.responder.GenerateReply(ctx, ai.Turn{
		SenderName: ev.SenderName,
		Text:       ev.Text,
		IsGroup:    ev.IsGroup,
	})

	if err := h.sleep(ctx, h.typingDelay(text)); err != nil {
		log.WarnContext(ctx, "Reply abandoned during typing delay", "error", err)
		h.outcome(metrics.OutcomeDropped)
		return
	}

	if err := h.messenger.Send(ctx, Reply{ConversationID: ev.ConversationID, Text: text, Channel: ev.Channel}); err != nil {
		log.ErrorContext(ctx, "Failed to send auto-reply", "error", err)
		h.outcome(metrics.OutcomeSendFailed)
		return
	}

	h.tracker.RecordOwnerActivity(ev.ConversationID, h.clock.Now())
	h.outcome(metrics.OutcomeReplied)
	if h.metrics != nil {
		h.metrics.RepliesSent.WithLabelValues(h.source).Inc()
	}
	log.InfoContext(ctx, "Auto-reply sent", "reply_preview", logger.Truncate(text, 50))
}

func (h *Handler) setPresence(ctx context.Context, ev Event, p Presence, log *slog.Logger) {
	if err := h.messenger.SetPresence(ctx, ev.ConversationID, ev.Channel, p); err != nil {
		log.DebugContext(ctx, "Failed to update presence", "presence", p, "error", err)
	}
}

// typingDelay is proportional to the reply length and capped at typingMaxDelay.
func (h *Handler) typingDelay(text string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(text)) * h.typingPerChar
	if d > h.typingMaxDelay {
		d = h.typingMaxDelay
	}
	return d
}

func (h *Handler) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := h.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) outcome(outcome string) string {
	if h.metrics != nil {
		h.metrics.Event(h.source, outcome)
	}
	return outcome
}
