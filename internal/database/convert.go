package database

import "github.com/edgard/awaybot/internal/activity"

// FromStates converts tracker states into rows.
func FromStates(states []activity.State) []ConversationActivity {
	rows := make([]ConversationActivity, 0, len(states))
	for _, s := range states {
		rows = append(rows, ConversationActivity{
			ConversationID: s.ConversationID,
			LastActivityAt: s.LastOwnerActivityAt,
		})
	}
	return rows
}

// ToStates converts rows into tracker states.
func ToStates(rows []ConversationActivity) []activity.State {
	states := make([]activity.State, 0, len(rows))
	for _, r := range rows {
		states = append(states, activity.State{
			ConversationID:      r.ConversationID,
			LastOwnerActivityAt: r.LastActivityAt,
		})
	}
	return states
}
