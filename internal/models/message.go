package models

import "time"

// Message is a persisted chat message. Exactly one of ChannelID and
// ConversationID is set; ThreadParentID points at a message in the same
// channel when the message is a threaded reply.
type Message struct {
	ID             int        `db:"id" json:"id"`
	Content        string     `db:"content" json:"content"`
	SenderID       int        `db:"sender_id" json:"sender_id"`
	ChannelID      *int       `db:"channel_id" json:"channel_id,omitempty"`
	ConversationID *int       `db:"conversation_id" json:"conversation_id,omitempty"`
	ThreadParentID *int       `db:"thread_parent_id" json:"thread_parent_id,omitempty"`
	Deleted        bool       `db:"deleted" json:"deleted"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time `db:"updated_at" json:"updated_at,omitempty"`

	// SenderUsername is hydrated from the user directory, never stored.
	SenderUsername string `db:"-" json:"sender_username,omitempty"`
}
