package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/awaybot/internal/ingress"
)

// ConversationPrefix namespaces Telegram chat ids in the activity tracker.
const ConversationPrefix = "tg:"

const connectionLookupTimeout = 10 * time.Second

// NewBusinessHandler returns the handler for business connection and
// business message updates. Messages are translated into ingress events.
func NewBusinessHandler(deps HandlerDeps) bot.HandlerFunc {
	return businessHandler{deps}.Handle
}

type businessHandler struct {
	deps HandlerDeps
}

func (h businessHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "business")

	if conn := update.BusinessConnection; conn != nil {
		log.InfoContext(ctx, "Business connection update",
			"connection_id", conn.ID,
			"user_id", conn.User.ID,
			"enabled", conn.IsEnabled)
		if conn.IsEnabled && h.deps.Owner.Learn(conn.User.ID) {
			log.InfoContext(ctx, "Learned business account owner", "owner_id", conn.User.ID)
		}
		return
	}

	msg := update.BusinessMessage
	if msg != nil && h.deps.Owner.ID() == 0 {
		if !h.learnOwner(ctx, b, msg.BusinessConnectionID) {
			log.WarnContext(ctx, "Dropping business message, account owner is unknown",
				"update_id", update.ID,
				"connection_id", msg.BusinessConnectionID)
			return
		}
	}

	ev, ok := EventFromMessage(msg, h.deps.Owner, h.deps.Clock.Now())
	if !ok {
		log.DebugContext(ctx, "Ignoring business update without a usable message", "update_id", update.ID)
		return
	}
	h.deps.Ingress.Handle(ctx, ev)
}

// learnOwner asks Telegram who owns the business connection. Connection
// updates arrive only when a connection changes, not on restart.
func (h businessHandler) learnOwner(ctx context.Context, b *bot.Bot, connectionID string) bool {
	if b == nil || connectionID == "" {
		return false
	}

	lookupCtx, cancel := context.WithTimeout(ctx, connectionLookupTimeout)
	defer cancel()

	conn, err := b.GetBusinessConnection(lookupCtx, &bot.GetBusinessConnectionParams{BusinessConnectionID: connectionID})
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to look up business connection", "connection_id", connectionID, "error", err)
		return false
	}
	if h.deps.Owner.Learn(conn.User.ID) {
		h.deps.Logger.InfoContext(ctx, "Learned business account owner", "owner_id", conn.User.ID, "connection_id", connectionID)
	}
	return h.deps.Owner.ID() != 0
}

// ConversationID returns the tracker key for a Telegram chat.
func ConversationID(chatID int64) string {
	return ConversationPrefix + strconv.FormatInt(chatID, 10)
}

// ChatIDFromConversation parses a key produced by ConversationID.
func ChatIDFromConversation(conversationID string) (int64, bool) {
	raw, ok := strings.CutPrefix(conversationID, ConversationPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// EventFromMessage translates a business message into an ingress event.
// Messages sent by the owner, or by this bot on the owner's behalf, are
// marked FromOwner.
func EventFromMessage(msg *models.Message, owner *Owner, now time.Time) (ingress.Event, bool) {
	if msg == nil || msg.From == nil {
		return ingress.Event{}, false
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if name == "" {
		name = msg.From.Username
	}

	return ingress.Event{
		ConversationID: ConversationID(msg.Chat.ID),
		SenderID:       strconv.FormatInt(msg.From.ID, 10),
		SenderName:     name,
		Text:           text,
		IsGroup:        msg.Chat.Type == models.ChatTypeGroup || msg.Chat.Type == models.ChatTypeSupergroup,
		FromOwner:      owner.Is(msg.From.ID) || msg.SenderBusinessBot != nil,
		Channel:        msg.BusinessConnectionID,
		ReceivedAt:     now,
	}, true
}
