package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-relay/internal/models"
)

var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrThreadParentGone = errors.New("thread parent not found in channel")
)

const messageColumns = `id, content, sender_id, channel_id, conversation_id, thread_parent_id, deleted, created_at, updated_at`

// MessageRepository defines interactions for channel, thread and direct
// messages.
type MessageRepository interface {
	CreateChannelMessage(ctx context.Context, channelID int, senderID int, content string, threadParentID *int) (models.Message, error)
	CreateDirectMessage(ctx context.Context, conversationID int, senderID int, content string) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	ListChannelMessages(ctx context.Context, channelID int) ([]models.Message, error)
	ListThreadMessages(ctx context.Context, threadParentID int) ([]models.Message, error)
	ListConversationMessages(ctx context.Context, conversationID int) ([]models.Message, error)
	DeleteMessage(ctx context.Context, messageID int) (models.Message, bool, error)
	SearchMessages(ctx context.Context, query string, userID int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateChannelMessage stores a message in a channel, optionally as a
// threaded reply. The thread parent must be a message of the same channel.
func (r *MessageRepo) CreateChannelMessage(ctx context.Context, channelID int, senderID int, content string, threadParentID *int) (models.Message, error) {
	if threadParentID != nil {
		var parentChannel sql.NullInt64
		err := r.db.GetContext(ctx, &parentChannel,
			`SELECT channel_id FROM messages WHERE id=$1 AND deleted = FALSE`, *threadParentID)
		if errors.Is(err, sql.ErrNoRows) {
			return models.Message{}, ErrThreadParentGone
		}
		if err != nil {
			return models.Message{}, err
		}
		if !parentChannel.Valid || int(parentChannel.Int64) != channelID {
			return models.Message{}, ErrThreadParentGone
		}
	}

	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (content, sender_id, channel_id, thread_parent_id)
         VALUES ($1, $2, $3, $4) RETURNING `+messageColumns,
		content, senderID, channelID, threadParentID).StructScan(&msg)
	return msg, err
}

// CreateDirectMessage stores a message in a one-to-one conversation.
func (r *MessageRepo) CreateDirectMessage(ctx context.Context, conversationID int, senderID int, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (content, sender_id, conversation_id)
         VALUES ($1, $2, $3) RETURNING `+messageColumns,
		content, senderID, conversationID).StructScan(&msg)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListChannelMessages returns top-level channel messages in send order.
func (r *MessageRepo) ListChannelMessages(ctx context.Context, channelID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE channel_id=$1 AND thread_parent_id IS NULL AND deleted = FALSE
         ORDER BY created_at ASC, id ASC`, channelID)
	return msgs, err
}

// ListThreadMessages returns the replies under a thread root in send order.
func (r *MessageRepo) ListThreadMessages(ctx context.Context, threadParentID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE thread_parent_id=$1 AND deleted = FALSE
         ORDER BY created_at ASC, id ASC`, threadParentID)
	return msgs, err
}

// ListConversationMessages returns a conversation's messages in send order.
func (r *MessageRepo) ListConversationMessages(ctx context.Context, conversationID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages
         WHERE conversation_id=$1 AND deleted = FALSE
         ORDER BY created_at ASC, id ASC`, conversationID)
	return msgs, err
}

// DeleteMessage hard-deletes a message and reports whether a row matched.
// The removed row is returned so callers can target cache invalidation.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID int) (models.Message, bool, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`DELETE FROM messages WHERE id=$1 RETURNING `+messageColumns, messageID).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, false, nil
	}
	if err != nil {
		return models.Message{}, false, err
	}
	return msg, true, nil
}

// SearchMessages returns the user's visible messages matching the query.
func (r *MessageRepo) SearchMessages(ctx context.Context, query string, userID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT m.id, m.content, m.sender_id, m.channel_id, m.conversation_id, m.thread_parent_id, m.deleted, m.created_at, m.updated_at
         FROM messages m
         LEFT JOIN conversations c ON c.id = m.conversation_id
         WHERE m.deleted = FALSE
           AND m.content ILIKE '%' || $1 || '%'
           AND (m.channel_id IS NOT NULL OR c.user1_id=$2 OR c.user2_id=$2)
         ORDER BY m.created_at DESC
         LIMIT 50`, query, userID)
	return msgs, err
}
