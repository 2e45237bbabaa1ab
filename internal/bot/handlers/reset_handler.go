package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const resetTimeout = 30 * time.Second

// NewResetHandler returns a handler for the /reset command. It forgets all
// tracked activity, making every conversation eligible again.
func NewResetHandler(deps HandlerDeps) bot.HandlerFunc {
	return resetHandler{deps}.Handle
}

type resetHandler struct {
	deps HandlerDeps
}

func (h resetHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "reset")
	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Reset handler called with nil Message or From", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Owner requested activity reset", "chat_id", chatID)

	removed := h.deps.Tracker.Reset()

	if h.deps.Store != nil {
		timeoutCtx, cancel := context.WithTimeout(ctx, resetTimeout)
		defer cancel()

		if _, err := h.deps.Store.DeleteAllActivity(timeoutCtx); err != nil {
			// The in-memory state is already cleared; a stale snapshot is
			// only read back on the next start.
			log.ErrorContext(ctx, "Failed to delete persisted activity", "error", err)
		}
	}

	log.InfoContext(ctx, "Activity reset", "removed", removed)

	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   fmt.Sprintf(h.deps.Config.Messages.ResetDone, removed),
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send reset confirmation message", "error", err, "chat_id", chatID)
	}
}
