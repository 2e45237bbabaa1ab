package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/edgard/awaybot/internal/bot/handlers"
	"github.com/edgard/awaybot/internal/ingress"
)

type fakeAPI struct {
	mu       sync.Mutex
	messages []*bot.SendMessageParams
	actions  []*bot.SendChatActionParams
	sendErr  error
}

func (f *fakeAPI) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.messages = append(f.messages, p)
	return &models.Message{ID: len(f.messages)}, nil
}

func (f *fakeAPI) SendChatAction(_ context.Context, p *bot.SendChatActionParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, p)
	return true, nil
}

func (f *fakeAPI) actionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.actions)
}

func newMessenger(api API, clock clockwork.Clock) *Messenger {
	return NewMessenger(api, clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMessenger_Send(t *testing.T) {
	api := &fakeAPI{}
	m := newMessenger(api, nil)

	err := m.Send(context.Background(), ingress.Reply{
		ConversationID: handlers.ConversationID(42),
		Text:           "brb",
		Channel:        "conn-1",
	})
	require.NoError(t, err)
	require.Len(t, api.messages, 1)
	require.EqualValues(t, 42, api.messages[0].ChatID)
	require.Equal(t, "brb", api.messages[0].Text)
	require.Equal(t, "conn-1", api.messages[0].BusinessConnectionID)

	require.Error(t, m.Send(context.Background(), ingress.Reply{ConversationID: "mx:!a:b"}))

	api.sendErr = errors.New("Forbidden: bot was blocked by the user")
	err = m.Send(context.Background(), ingress.Reply{ConversationID: "tg:42", Text: "x"})
	require.ErrorIs(t, err, api.sendErr)
}

func TestMessenger_TypingRefreshesUntilPaused(t *testing.T) {
	api := &fakeAPI{}
	clock := clockwork.NewFakeClock()
	m := newMessenger(api, clock)
	ctx := context.Background()

	require.NoError(t, m.SetPresence(ctx, "tg:42", "conn-1", ingress.PresenceComposing))
	require.Equal(t, 1, api.actionCount())
	require.Equal(t, models.ChatActionTyping, api.actions[0].Action)
	require.Equal(t, "conn-1", api.actions[0].BusinessConnectionID)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	clock.Advance(typingInterval)
	require.Eventually(t, func() bool { return api.actionCount() == 2 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, m.SetPresence(ctx, "tg:42", "conn-1", ingress.PresencePaused))
	require.NoError(t, clock.BlockUntilContext(waitCtx, 0))

	clock.Advance(3 * typingInterval)
	require.Equal(t, 2, api.actionCount())
}

func TestMessenger_OverlappingRepliesShareTyping(t *testing.T) {
	api := &fakeAPI{}
	clock := clockwork.NewFakeClock()
	m := newMessenger(api, clock)
	ctx := context.Background()

	require.NoError(t, m.SetPresence(ctx, "tg:42", "conn-1", ingress.PresenceComposing))
	require.NoError(t, m.SetPresence(ctx, "tg:42", "conn-1", ingress.PresenceComposing))
	require.Equal(t, 2, api.actionCount())

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	// The first reply finishes while the second is still composing.
	require.NoError(t, m.SetPresence(ctx, "tg:42", "conn-1", ingress.PresencePaused))
	clock.Advance(typingInterval)
	require.Eventually(t, func() bool { return api.actionCount() == 3 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, m.SetPresence(ctx, "tg:42", "conn-1", ingress.PresencePaused))
	require.NoError(t, clock.BlockUntilContext(waitCtx, 0))

	// An unmatched pause is harmless.
	require.NoError(t, m.SetPresence(ctx, "tg:42", "conn-1", ingress.PresencePaused))
	clock.Advance(3 * typingInterval)
	require.Equal(t, 3, api.actionCount())
}

func TestMessenger_StopEndsTyping(t *testing.T) {
	api := &fakeAPI{}
	clock := clockwork.NewFakeClock()
	m := newMessenger(api, clock)
	ctx := context.Background()

	require.NoError(t, m.SetPresence(ctx, "tg:1", "", ingress.PresenceComposing))
	require.NoError(t, m.SetPresence(ctx, "tg:2", "", ingress.PresenceComposing))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 2))

	m.Stop()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 0))

	require.Error(t, m.SetPresence(ctx, "bogus", "", ingress.PresenceComposing))
}
