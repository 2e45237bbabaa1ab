package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return textReplyHandler{deps: deps, name: "start", text: func(h HandlerDeps) string { return h.Config.Messages.Welcome }}.Handle
}

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) bot.HandlerFunc {
	return textReplyHandler{deps: deps, name: "help", text: func(h HandlerDeps) string { return h.Config.Messages.Help }}.Handle
}

// textReplyHandler answers a command with a configured message.
type textReplyHandler struct {
	deps HandlerDeps
	name string
	text func(HandlerDeps) string
}

func (h textReplyHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", h.name)

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Handling command", "chat_id", chatID, "user_id", update.Message.From.ID)

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: h.text(h.deps)}); err != nil {
		log.ErrorContext(ctx, "Failed to send command reply", "error", err, "chat_id", chatID)
	}
}
