package models

import "time"

// Reaction is an emoji reaction on a message. A user may react with a
// given emoji to a given message at most once.
type Reaction struct {
	ID        int       `db:"id" json:"id"`
	MessageID int       `db:"message_id" json:"message_id"`
	UserID    int       `db:"user_id" json:"user_id"`
	Emoji     string    `db:"emoji" json:"emoji"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// User is the identity shape returned by the user directory.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Status   string `json:"status,omitempty"`
}
