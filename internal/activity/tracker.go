// Package activity tracks when the owner last took part in each conversation
// and decides whether an automated reply may be sent on their behalf.
package activity

import (
	"sort"
	"sync"
	"time"
)

// State is the tracked activity of a single conversation.
type State struct {
	ConversationID      string
	LastOwnerActivityAt time.Time
}

// Tracker holds the last owner activity per conversation. A conversation is
// QUIET (eligible for an auto-reply) once the quiet period has elapsed since
// the last recorded activity and ENGAGED otherwise. Conversations with no
// recorded activity are always QUIET.
//
// Tracker is safe for concurrent use.
type Tracker struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]time.Time)}
}

// RecordOwnerActivity marks the conversation as active at the given time.
// Timestamps are max-merged: an older timestamp arriving late never moves the
// last activity backwards.
func (t *Tracker) RecordOwnerActivity(conversationID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.last[conversationID]; ok && !at.After(prev) {
		return
	}
	t.last[conversationID] = at
}

// ShouldAutoReply reports whether at least quiet has elapsed since the last
// recorded activity. The boundary is inclusive.
func (t *Tracker) ShouldAutoReply(conversationID string, now time.Time, quiet time.Duration) bool {
	return t.TimeUntilEligible(conversationID, now, quiet) == 0
}

// TimeUntilEligible returns how long the conversation must stay quiet before
// an automated reply is allowed, or zero if it already is.
func (t *Tracker) TimeUntilEligible(conversationID string, now time.Time, quiet time.Duration) time.Duration {
	t.mu.RLock()
	last, ok := t.last[conversationID]
	t.mu.RUnlock()

	if !ok {
		return 0
	}
	remaining := quiet - now.Sub(last)
	if remaining <= 0 {
		return 0
	}
	return remaining
}

// LastActivity returns the last recorded activity and whether one exists.
func (t *Tracker) LastActivity(conversationID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	last, ok := t.last[conversationID]
	return last, ok
}

// Snapshot returns every tracked conversation, most recently active first.
func (t *Tracker) Snapshot() []State {
	t.mu.RLock()
	states := make([]State, 0, len(t.last))
	for id, at := range t.last {
		states = append(states, State{ConversationID: id, LastOwnerActivityAt: at})
	}
	t.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool {
		if states[i].LastOwnerActivityAt.Equal(states[j].LastOwnerActivityAt) {
			return states[i].ConversationID < states[j].ConversationID
		}
		return states[i].LastOwnerActivityAt.After(states[j].LastOwnerActivityAt)
	})
	return states
}

// Restore merges previously persisted states into the tracker using the same
// max-merge rule as RecordOwnerActivity. It returns the number of entries that
// changed the tracker.
func (t *Tracker) Restore(states []State) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	applied := 0
	for _, s := range states {
		if s.ConversationID == "" || s.LastOwnerActivityAt.IsZero() {
			continue
		}
		if prev, ok := t.last[s.ConversationID]; ok && !s.LastOwnerActivityAt.After(prev) {
			continue
		}
		t.last[s.ConversationID] = s.LastOwnerActivityAt
		applied++
	}
	return applied
}

// Sweep removes conversations whose last activity is at least olderThan before
// now. With olderThan >= the quiet period this never changes an eligibility
// decision, since a swept conversation and an expired one are both QUIET.
func (t *Tracker) Sweep(now time.Time, olderThan time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, at := range t.last {
		if now.Sub(at) >= olderThan {
			delete(t.last, id)
			removed++
		}
	}
	return removed
}

// Forget drops a single conversation, making it QUIET immediately.
func (t *Tracker) Forget(conversationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.last[conversationID]; !ok {
		return false
	}
	delete(t.last, conversationID)
	return true
}

// Reset drops every tracked conversation and returns how many were removed.
func (t *Tracker) Reset() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.last)
	t.last = make(map[string]time.Time)
	return n
}

// Len returns the number of tracked conversations.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.last)
}
