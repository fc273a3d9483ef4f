package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/jmoiron/sqlx"

	"chat-relay/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts one-to-one conversation persistence.
type ConversationRepository interface {
	GetOrCreateConversation(ctx context.Context, userID int, peerID int) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID int) (models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID int) ([]models.Conversation, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// GetOrCreateConversation returns the conversation for a user pair,
// creating it if absent. The pair is stored in canonical (lower, higher)
// order so (A,B) and (B,A) resolve to the same row.
func (r *ConversationRepo) GetOrCreateConversation(ctx context.Context, userID int, peerID int) (models.Conversation, error) {
	if userID == peerID {
		return models.Conversation{}, errors.New("cannot start conversation with self")
	}
	pair := []int{userID, peerID}
	sort.Ints(pair)

	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT id, user1_id, user2_id, created_at FROM conversations WHERE user1_id=$1 AND user2_id=$2`,
		pair[0], pair[1])
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, err
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO conversations (user1_id, user2_id) VALUES ($1, $2)
         ON CONFLICT (user1_id, user2_id) DO UPDATE SET user1_id = EXCLUDED.user1_id
         RETURNING id, user1_id, user2_id, created_at`,
		pair[0], pair[1]).StructScan(&conv)
	return conv, err
}

// GetConversation fetches a conversation by id.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT id, user1_id, user2_id, created_at FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// ListConversationsForUser returns the conversations the user takes part in.
func (r *ConversationRepo) ListConversationsForUser(ctx context.Context, userID int) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs,
		`SELECT id, user1_id, user2_id, created_at FROM conversations
         WHERE user1_id=$1 OR user2_id=$1 ORDER BY created_at DESC`, userID)
	return convs, err
}
