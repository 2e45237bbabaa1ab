package ingress

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/edgard/awaybot/internal/activity"
	"github.com/edgard/awaybot/internal/ai"
	"github.com/edgard/awaybot/internal/config"
	"github.com/edgard/awaybot/internal/metrics"
)

var epoch = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

type fakeMessenger struct {
	mu       sync.Mutex
	sent     []Reply
	presence []Presence
	sendErr  error
}

func (m *fakeMessenger) Send(_ context.Context, r Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, r)
	return nil
}

func (m *fakeMessenger) SetPresence(_ context.Context, _, _ string, p Presence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presence = append(m.presence, p)
	return nil
}

func (m *fakeMessenger) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *fakeMessenger) presences() []Presence {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Presence(nil), m.presence...)
}

type fakeResponder struct {
	mu    sync.Mutex
	reply string
	turns []ai.Turn
	gate  chan struct{}
}

func (r *fakeResponder) GenerateReply(_ context.Context, turn ai.Turn) string {
	r.mu.Lock()
	r.turns = append(r.turns, turn)
	r.mu.Unlock()
	if r.gate != nil {
		<-r.gate
	}
	return r.reply
}

func (r *fakeResponder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns)
}

type fixture struct {
	handler   *Handler
	tracker   *activity.Tracker
	clock     *clockwork.FakeClock
	messenger *fakeMessenger
	responder *fakeResponder
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T, mutate func(*config.AutoReplyConfig)) *fixture {
	t.Helper()
	cfg := config.AutoReplyConfig{
		QuietPeriod:          300 * time.Second,
		MaxConcurrentReplies: 4,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	f := &fixture{
		tracker:   activity.NewTracker(),
		clock:     clockwork.NewFakeClockAt(epoch),
		messenger: &fakeMessenger{},
		responder: &fakeResponder{reply: "busy rn, will call later"},
		metrics:   metrics.New(),
	}
	f.handler = NewHandler("test", f.messenger, Deps{
		Tracker:   f.tracker,
		Responder: f.responder,
		Clock:     f.clock,
		Metrics:   f.metrics,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, cfg)
	return f
}

func inbound(conv, text string) Event {
	return Event{ConversationID: conv, SenderID: "u1", SenderName: "Priya", Text: text, Channel: "chan-1"}
}

func (f *fixture) waitForSends(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.messenger.sentCount() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHandle_Filters(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.AutoReplyConfig)
		event  Event
		want   string
	}{
		{name: "empty text", event: inbound("c1", "   "), want: metrics.OutcomeEmpty},
		{
			name:   "group skipped",
			mutate: func(c *config.AutoReplyConfig) { c.SkipGroups = true },
			event:  Event{ConversationID: "c1", Text: "hi all", IsGroup: true},
			want:   metrics.OutcomeGroup,
		},
		{name: "owner message", event: Event{ConversationID: "c1", Text: "on my way", FromOwner: true}, want: metrics.OutcomeOwner},
		{
			name:   "ignored conversation",
			mutate: func(c *config.AutoReplyConfig) { c.IgnoreConversations = []string{"c1"} },
			event:  inbound("c1", "hello"),
			want:   metrics.OutcomeIgnored,
		},
		{name: "quiet conversation", event: inbound("c1", "hello"), want: OutcomeQueued},
		{
			name:  "group allowed by default",
			event: Event{ConversationID: "c1", Text: "hi all", IsGroup: true},
			want:  OutcomeQueued,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.mutate)
			require.Equal(t, tc.want, f.handler.Handle(context.Background(), tc.event))
			f.handler.Wait()
		})
	}
}

func TestHandle_OwnerMessageRecordsActivityWithoutReply(t *testing.T) {
	f := newFixture(t, nil)

	f.handler.Handle(context.Background(), Event{ConversationID: "c1", Text: "brb", FromOwner: true})
	last, ok := f.tracker.LastActivity("c1")
	require.True(t, ok)
	require.Equal(t, epoch, last)

	f.clock.Advance(time.Minute)
	require.Equal(t, metrics.OutcomeNotEligible, f.handler.Handle(context.Background(), inbound("c1", "you there?")))

	f.handler.Wait()
	require.Zero(t, f.responder.calls())
	require.Zero(t, f.messenger.sentCount())
}

func TestHandle_EndToEndQuietPeriod(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.Equal(t, OutcomeQueued, f.handler.Handle(ctx, inbound("C1", "hey")))
	f.waitForSends(t, 1)
	last, _ := f.tracker.LastActivity("C1")
	require.Equal(t, epoch, last)

	f.clock.Advance(100 * time.Second)
	require.Equal(t, metrics.OutcomeNotEligible, f.handler.Handle(ctx, inbound("C1", "hello??")))
	last, _ = f.tracker.LastActivity("C1")
	require.Equal(t, epoch, last, "an ineligible event must not change state")

	f.clock.Advance(200 * time.Second)
	require.Equal(t, OutcomeQueued, f.handler.Handle(ctx, inbound("C1", "ok call me")))
	f.waitForSends(t, 2)
	last, _ = f.tracker.LastActivity("C1")
	require.Equal(t, epoch.Add(300*time.Second), last)

	f.handler.Wait()
	require.Equal(t, Reply{ConversationID: "C1", Text: "busy rn, will call later", Channel: "chan-1"}, f.messenger.sent[0])
	require.Equal(t, 2.0, testutil.ToFloat64(f.metrics.RepliesSent.WithLabelValues("test")))
	require.ElementsMatch(t, []Presence{PresenceComposing, PresencePaused, PresenceComposing, PresencePaused}, f.messenger.presences())
}

func TestHandle_RapidEventsAreBoundedByDispatch(t *testing.T) {
	f := newFixture(t, nil)
	f.responder.gate = make(chan struct{})
	ctx := context.Background()

	// Both arrive before any reply is dispatched, so both are eligible.
	require.Equal(t, OutcomeQueued, f.handler.Handle(ctx, inbound("c1", "one")))
	require.Equal(t, OutcomeQueued, f.handler.Handle(ctx, inbound("c1", "two")))
	require.Eventually(t, func() bool { return f.responder.calls() == 2 }, 2*time.Second, 5*time.Millisecond)

	close(f.responder.gate)
	f.waitForSends(t, 2)

	// Any dispatch re-arms the window for the whole quiet period.
	for range 5 {
		f.clock.Advance(10 * time.Second)
		require.Equal(t, metrics.OutcomeNotEligible, f.handler.Handle(ctx, inbound("c1", "three")))
	}
	f.handler.Wait()
	require.Equal(t, 2, f.messenger.sentCount())
}

func TestHandle_BusyWorkersDoNotBlockEvents(t *testing.T) {
	f := newFixture(t, func(c *config.AutoReplyConfig) { c.MaxConcurrentReplies = 1 })
	f.responder.gate = make(chan struct{})
	ctx := context.Background()

	require.Equal(t, OutcomeQueued, f.handler.Handle(ctx, inbound("c1", "one")))
	require.Eventually(t, func() bool { return f.responder.calls() == 1 }, 2*time.Second, 5*time.Millisecond)

	done := make(chan []string, 1)
	go func() {
		done <- []string{
			f.handler.Handle(ctx, inbound("c2", "two")),
			f.handler.Handle(ctx, Event{ConversationID: "c3", Text: "back", FromOwner: true}),
		}
	}()

	select {
	case got := <-done:
		require.Equal(t, []string{OutcomeQueued, metrics.OutcomeOwner}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("Handle blocked while the only worker was busy")
	}
	_, ok := f.tracker.LastActivity("c3")
	require.True(t, ok)
	require.Equal(t, 1, f.responder.calls())

	close(f.responder.gate)
	f.handler.Wait()
	require.Equal(t, 2, f.messenger.sentCount())
}

func TestHandle_SendFailureDoesNotRearm(t *testing.T) {
	f := newFixture(t, nil)
	f.messenger.sendErr = errors.New("network down")

	f.handler.Handle(context.Background(), inbound("c1", "hi"))
	f.handler.Wait()

	_, ok := f.tracker.LastActivity("c1")
	require.False(t, ok)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.InboundEvents.WithLabelValues("test", metrics.OutcomeSendFailed)))
	require.Equal(t, []Presence{PresenceComposing, PresencePaused}, f.messenger.presences())
}

func TestHandle_TypingDelay(t *testing.T) {
	f := newFixture(t, func(c *config.AutoReplyConfig) {
		c.TypingPerChar = 50 * time.Millisecond
		c.TypingMaxDelay = 5 * time.Second
	})
	f.responder.reply = "0123456789"
	ctx := context.Background()

	f.handler.Handle(ctx, inbound("c1", "hi"))

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(waitCtx, 1))

	f.clock.Advance(499 * time.Millisecond)
	require.Zero(t, f.messenger.sentCount())

	f.clock.Advance(time.Millisecond)
	f.waitForSends(t, 1)
	last, _ := f.tracker.LastActivity("c1")
	require.Equal(t, epoch.Add(500*time.Millisecond), last, "activity is recorded at dispatch time")
	f.handler.Wait()
}

func TestHandle_ShutdownAbortsTypingDelay(t *testing.T) {
	f := newFixture(t, func(c *config.AutoReplyConfig) {
		c.TypingPerChar = time.Second
		c.TypingMaxDelay = 5 * time.Second
	})
	ctx, cancel := context.WithCancel(context.Background())

	f.handler.Handle(ctx, inbound("c1", "hi"))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, f.clock.BlockUntilContext(waitCtx, 1))

	cancel()
	f.handler.Wait()

	require.Zero(t, f.messenger.sentCount())
	_, ok := f.tracker.LastActivity("c1")
	require.False(t, ok)
	require.Equal(t, []Presence{PresenceComposing, PresencePaused}, f.messenger.presences())
}

func TestTypingDelay(t *testing.T) {
	h := &Handler{typingPerChar: 50 * time.Millisecond, typingMaxDelay: 5 * time.Second}

	require.Zero(t, h.typingDelay(""))
	require.Equal(t, 250*time.Millisecond, h.typingDelay("héllo"))
	require.Equal(t, 5*time.Second, h.typingDelay(string(make([]byte, 500))))
}
