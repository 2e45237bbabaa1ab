package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/jonboulle/clockwork"

	"github.com/edgard/awaybot/internal/bot/handlers"
	"github.com/edgard/awaybot/internal/ingress"
)

// typingInterval refreshes the chat action before Telegram expires it
// after about five seconds.
const typingInterval = 4 * time.Second

// API is the subset of the Bot API used to deliver replies. *bot.Bot
// implements it.
type API interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

// Messenger delivers auto-replies through the owner's business connection.
type Messenger struct {
	api   API
	clock clockwork.Clock
	log   *slog.Logger

	mu     sync.Mutex
	typing map[string]*typingLoop
}

// typingLoop is shared by every reply composing in the same chat and ends
// when the last of them pauses.
type typingLoop struct {
	cancel context.CancelFunc
	refs   int
}

var _ ingress.Messenger = (*Messenger)(nil)

// NewMessenger creates a Messenger. A nil clock uses the real clock.
func NewMessenger(api API, clock clockwork.Clock, log *slog.Logger) *Messenger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Messenger{
		api:    api,
		clock:  clock,
		log:    log.With("component", "telegram_messenger"),
		typing: make(map[string]*typingLoop),
	}
}

// Send posts the reply on behalf of the business account.
func (m *Messenger) Send(ctx context.Context, reply ingress.Reply) error {
	chatID, ok := handlers.ChatIDFromConversation(reply.ConversationID)
	if !ok {
		return fmt.Errorf("not a telegram conversation: %q", reply.ConversationID)
	}

	_, err := m.api.SendMessage(ctx, &bot.SendMessageParams{
		BusinessConnectionID: reply.Channel,
		ChatID:               chatID,
		Text:                 reply.Text,
	})
	if err != nil {
		return fmt.Errorf("failed to send message to %d: %w", chatID, err)
	}
	return nil
}

// SetPresence shows the typing indicator while composing, refreshing it
// until every composing call for the chat has been paused. Telegram clears
// the indicator itself when the message arrives.
func (m *Messenger) SetPresence(ctx context.Context, conversationID, channel string, p ingress.Presence) error {
	if p != ingress.PresenceComposing {
		m.releaseTyping(conversationID)
		return nil
	}

	chatID, ok := handlers.ChatIDFromConversation(conversationID)
	if !ok {
		return fmt.Errorf("not a telegram conversation: %q", conversationID)
	}

	m.mu.Lock()
	if loop, exists := m.typing[conversationID]; exists {
		loop.refs++
	} else {
		typingCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		m.typing[conversationID] = &typingLoop{cancel: cancel, refs: 1}
		go m.keepTyping(typingCtx, chatID, channel)
	}
	m.mu.Unlock()

	return m.sendTyping(ctx, chatID, channel)
}

// Stop ends every typing loop.
func (m *Messenger) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, loop := range m.typing {
		loop.cancel()
		delete(m.typing, id)
	}
}

func (m *Messenger) keepTyping(ctx context.Context, chatID int64, channel string) {
	ticker := m.clock.NewTicker(typingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := m.sendTyping(ctx, chatID, channel); err != nil {
				if ctx.Err() != nil {
					return
				}
				m.log.DebugContext(ctx, "Typing action failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

func (m *Messenger) sendTyping(ctx context.Context, chatID int64, channel string) error {
	_, err := m.api.SendChatAction(ctx, &bot.SendChatActionParams{
		BusinessConnectionID: channel,
		ChatID:               chatID,
		Action:               models.ChatActionTyping,
	})
	if err != nil {
		return fmt.Errorf("failed to send typing action: %w", err)
	}
	return nil
}

func (m *Messenger) releaseTyping(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loop, ok := m.typing[conversationID]
	if !ok {
		return
	}
	if loop.refs--; loop.refs > 0 {
		return
	}
	loop.cancel()
	delete(m.typing, conversationID)
}
