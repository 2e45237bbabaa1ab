package database

import "time"

// ConversationActivity is a persisted tracker entry. It holds no message content.
type ConversationActivity struct {
	ConversationID string    `db:"conversation_id"`
	LastActivityAt time.Time `db:"last_activity_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}
