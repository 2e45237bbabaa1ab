// Package matrix connects awaybot to Matrix, logged in as the owner's own
// account. Messages the owner sends count as owner activity; everything else
// in a joined room is an inbound event.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/edgard/awaybot/internal/config"
	"github.com/edgard/awaybot/internal/ingress"
)

// ConversationPrefix namespaces Matrix room ids in the activity tracker.
const ConversationPrefix = "mx:"

const (
	syncBackoffMin = 2 * time.Second
	syncBackoffMax = 5 * time.Minute
)

// EventHandler receives translated room messages.
type EventHandler interface {
	Handle(ctx context.Context, ev ingress.Event) string
}

// api is the subset of *mautrix.Client used outside the sync loop.
type api interface {
	SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error)
	UserTyping(ctx context.Context, roomID id.RoomID, typing bool, timeout time.Duration) (*mautrix.RespTyping, error)
	JoinedMembers(ctx context.Context, roomID id.RoomID) (*mautrix.RespJoinedMembers, error)
	GetProfile(ctx context.Context, userID id.UserID) (*mautrix.RespUserProfile, error)
}

// Client is the owner's Matrix session.
type Client struct {
	mxc           *mautrix.Client
	api           api
	userID        id.UserID
	typingTimeout time.Duration
	clock         clockwork.Clock
	log           *slog.Logger
	startedAt     time.Time

	handlerMu sync.RWMutex
	handler   EventHandler

	cacheMu sync.Mutex
	groups  map[id.RoomID]bool
	names   map[id.UserID]string
}

var _ ingress.Messenger = (*Client)(nil)

// New creates a Matrix client but does not start syncing. mxLog receives the
// mautrix library's own logging.
func New(cfg config.MatrixConfig, clock clockwork.Clock, log *slog.Logger, mxLog zerolog.Logger) (*Client, error) {
	mxc, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("create matrix client: %w", err)
	}
	mxc.Log = mxLog

	c := newClient(mxc, id.UserID(cfg.UserID), cfg.TypingTimeout, clock, log)
	c.mxc = mxc

	syncer, ok := mxc.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return nil, errors.New("unexpected matrix syncer type")
	}
	syncer.OnEventType(event.EventMessage, c.onMessage)
	syncer.OnEventType(event.StateMember, c.onMember)
	return c, nil
}

func newClient(a api, userID id.UserID, typingTimeout time.Duration, clock clockwork.Clock, log *slog.Logger) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		api:           a,
		userID:        userID,
		typingTimeout: typingTimeout,
		clock:         clock,
		log:           log.With("component", "matrix"),
		startedAt:     clock.Now(),
		groups:        make(map[id.RoomID]bool),
		names:         make(map[id.UserID]string),
	}
}

// SetHandler sets the receiver of inbound events. It must be called before Run.
func (c *Client) SetHandler(h EventHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handler = h
}

// Run syncs until ctx is cancelled, reconnecting with exponential backoff.
func (c *Client) Run(ctx context.Context) error {
	if c.mxc == nil {
		return errors.New("matrix client not initialised")
	}
	c.log.Info("Starting Matrix sync", "user_id", c.userID)

	backoff := syncBackoffMin
	for {
		err := c.mxc.SyncWithContext(ctx)
		if ctx.Err() != nil {
			c.mxc.StopSync()
			return nil
		}
		if err == nil {
			backoff = syncBackoffMin
			continue
		}

		c.log.Error("Matrix sync error; reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-c.clock.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > syncBackoffMax {
		d = syncBackoffMax
	}
	return d
}

// Send posts the reply as a plain-text message in the room.
func (c *Client) Send(ctx context.Context, reply ingress.Reply) error {
	roomID, ok := RoomFromConversation(reply.ConversationID)
	if !ok {
		return fmt.Errorf("not a matrix conversation: %q", reply.ConversationID)
	}
	if _, err := c.api.SendText(ctx, roomID, reply.Text); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", roomID, err)
	}
	return nil
}

// SetPresence maps composing and paused onto the room typing notification.
func (c *Client) SetPresence(ctx context.Context, conversationID, _ string, p ingress.Presence) error {
	roomID, ok := RoomFromConversation(conversationID)
	if !ok {
		return fmt.Errorf("not a matrix conversation: %q", conversationID)
	}
	typing := p == ingress.PresenceComposing
	if _, err := c.api.UserTyping(ctx, roomID, typing, c.typingTimeout); err != nil {
		return fmt.Errorf("failed to set typing: %w", err)
	}
	return nil
}

func (c *Client) onMessage(ctx context.Context, evt *event.Event) {
	ev, ok := c.translate(ctx, evt)
	if !ok {
		return
	}

	c.handlerMu.RLock()
	h := c.handler
	c.handlerMu.RUnlock()
	if h == nil {
		c.log.WarnContext(ctx, "Dropping Matrix event, no handler set", "room_id", evt.RoomID)
		return
	}
	h.Handle(ctx, ev)
}

// onMember drops the cached group flag when room membership changes.
func (c *Client) onMember(_ context.Context, evt *event.Event) {
	c.cacheMu.Lock()
	delete(c.groups, evt.RoomID)
	c.cacheMu.Unlock()
}

// translate converts a room message into an ingress event. Events from
// before the client was created are replayed history and are skipped.
func (c *Client) translate(ctx context.Context, evt *event.Event) (ingress.Event, bool) {
	if evt == nil || evt.Timestamp < c.startedAt.UnixMilli() {
		return ingress.Event{}, false
	}

	msg := evt.Content.AsMessage()
	if msg == nil {
		return ingress.Event{}, false
	}
	if msg.MsgType != event.MsgText && msg.MsgType != event.MsgEmote {
		return ingress.Event{}, false
	}
	if msg.RelatesTo != nil && msg.RelatesTo.Type == event.RelReplace {
		return ingress.Event{}, false
	}

	fromOwner := evt.Sender == c.userID
	ev := ingress.Event{
		ConversationID: ConversationID(evt.RoomID),
		SenderID:       evt.Sender.String(),
		Text:           msg.Body,
		FromOwner:      fromOwner,
		ReceivedAt:     time.UnixMilli(evt.Timestamp),
	}
	if !fromOwner {
		ev.SenderName = c.displayName(ctx, evt.Sender)
		ev.IsGroup = c.isGroup(ctx, evt.RoomID)
	}
	return ev, true
}

func (c *Client) isGroup(ctx context.Context, roomID id.RoomID) bool {
	c.cacheMu.Lock()
	group, ok := c.groups[roomID]
	c.cacheMu.Unlock()
	if ok {
		return group
	}

	resp, err := c.api.JoinedMembers(ctx, roomID)
	if err != nil {
		c.log.WarnContext(ctx, "Failed to load room members, treating as direct chat", "room_id", roomID, "error", err)
		return false
	}
	group = len(resp.Joined) > 2

	c.cacheMu.Lock()
	c.groups[roomID] = group
	c.cacheMu.Unlock()
	return group
}

func (c *Client) displayName(ctx context.Context, userID id.UserID) string {
	c.cacheMu.Lock()
	name, ok := c.names[userID]
	c.cacheMu.Unlock()
	if ok {
		return name
	}

	name = localpart(userID)
	profile, err := c.api.GetProfile(ctx, userID)
	if err != nil {
		c.log.DebugContext(ctx, "Failed to load profile, using localpart", "user_id", userID, "error", err)
		return name
	}
	if dn := strings.TrimSpace(profile.DisplayName); dn != "" {
		name = dn
	}

	c.cacheMu.Lock()
	c.names[userID] = name
	c.cacheMu.Unlock()
	return name
}

func localpart(userID id.UserID) string {
	local, _, err := userID.Parse()
	if err != nil || local == "" {
		return strings.TrimPrefix(string(userID), "@")
	}
	return local
}

// ConversationID returns the tracker key for a room.
func ConversationID(roomID id.RoomID) string {
	return ConversationPrefix + string(roomID)
}

// RoomFromConversation parses a key produced by ConversationID.
func RoomFromConversation(conversationID string) (id.RoomID, bool) {
	raw, ok := strings.CutPrefix(conversationID, ConversationPrefix)
	if !ok || raw == "" {
		return "", false
	}
	return id.RoomID(raw), true
}
