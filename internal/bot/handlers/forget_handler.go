package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewForgetHandler returns a handler for the /forget command. It drops the
// activity of one conversation so its next inbound message is answered.
// A bare Telegram chat id is accepted in place of the tg: form.
func NewForgetHandler(deps HandlerDeps) bot.HandlerFunc {
	return forgetHandler{deps}.Handle
}

type forgetHandler struct {
	deps HandlerDeps
}

func (h forgetHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "forget")
	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Forget handler called with nil Message or From", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	conversationID, ok := forgetTarget(update.Message.Text)
	if !ok {
		h.reply(ctx, b, chatID, h.deps.Config.Messages.ForgetUsage)
		return
	}

	removed := h.deps.Tracker.Forget(conversationID)
	if h.deps.Store != nil {
		timeoutCtx, cancel := context.WithTimeout(ctx, resetTimeout)
		defer cancel()

		deleted, err := h.deps.Store.DeleteActivity(timeoutCtx, conversationID)
		if err != nil {
			log.ErrorContext(ctx, "Failed to delete persisted activity", "conversation_id", conversationID, "error", err)
		}
		removed = removed || deleted
	}

	log.InfoContext(ctx, "Owner requested conversation forget", "conversation_id", conversationID, "removed", removed)

	text := fmt.Sprintf(h.deps.Config.Messages.ForgetAbsent, conversationID)
	if removed {
		text = fmt.Sprintf(h.deps.Config.Messages.ForgetDone, conversationID)
	}
	h.reply(ctx, b, chatID, text)
}

func (h forgetHandler) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to send forget reply", "error", err, "chat_id", chatID)
	}
}

// forgetTarget extracts the conversation id argument of a /forget command.
func forgetTarget(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return "", false
	}
	arg := fields[1]
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return ConversationID(id), true
	}
	return arg, true
}
