package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/awaybot/internal/activity"
)

// maxStatusEntries caps the /status listing.
const maxStatusEntries = 20

// NewStatusHandler returns a handler for the /status command.
func NewStatusHandler(deps HandlerDeps) bot.HandlerFunc {
	return statusHandler{deps}.Handle
}

type statusHandler struct {
	deps HandlerDeps
}

func (h statusHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "status")
	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Status handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	text := FormatStatus(h.deps, h.deps.Tracker.Snapshot(), h.deps.Clock.Now())

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		log.ErrorContext(ctx, "Failed to send status message", "error", err, "chat_id", chatID)
	}
}

// FormatStatus renders tracked conversations, most recently active first.
func FormatStatus(deps HandlerDeps, states []activity.State, now time.Time) string {
	msgs := deps.Config.Messages
	if len(states) == 0 {
		return msgs.StatusEmpty
	}

	quiet := deps.Config.AutoReply.QuietPeriod
	var sb strings.Builder
	fmt.Fprintf(&sb, msgs.StatusHeader, quiet)

	for i, s := range states {
		if i == maxStatusEntries {
			fmt.Fprintf(&sb, "... and %d more\n", len(states)-maxStatusEntries)
			break
		}
		ago := now.Sub(s.LastOwnerActivityAt).Round(time.Second)
		wait := deps.Tracker.TimeUntilEligible(s.ConversationID, now, quiet)
		if wait == 0 {
			fmt.Fprintf(&sb, "%s: active %s ago, auto-reply on\n", s.ConversationID, ago)
		} else {
			fmt.Fprintf(&sb, "%s: active %s ago, auto-reply in %s\n", s.ConversationID, ago, wait.Round(time.Second))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
