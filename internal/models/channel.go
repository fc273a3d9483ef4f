package models

import "time"

// Channel represents a named group conversation.
type Channel struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatorID int       `db:"creator_id" json:"creator_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Conversation represents a one-to-one conversation between two users.
// User1ID is always the smaller of the pair so each pair maps to one row.
type Conversation struct {
	ID        int       `db:"id" json:"id"`
	User1ID   int       `db:"user1_id" json:"user1_id"`
	User2ID   int       `db:"user2_id" json:"user2_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PeerOf returns the other participant of the conversation.
func (c Conversation) PeerOf(userID int) int {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}
