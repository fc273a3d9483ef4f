package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-relay/internal/models"
)

var (
	ErrReactionNotFound  = errors.New("reaction not found")
	ErrDuplicateReaction = errors.New("reaction already exists")
)

// ReactionRepository abstracts emoji reaction persistence.
type ReactionRepository interface {
	AddReaction(ctx context.Context, messageID int, userID int, emoji string) (models.Reaction, error)
	RemoveReaction(ctx context.Context, reactionID int, userID int) (models.Reaction, error)
	ListReactions(ctx context.Context, messageID int) ([]models.Reaction, error)
}

// ReactionRepo is a sqlx implementation of ReactionRepository.
type ReactionRepo struct {
	db *sqlx.DB
}

// NewReactionRepo constructs a ReactionRepo.
func NewReactionRepo(db *sqlx.DB) *ReactionRepo {
	return &ReactionRepo{db: db}
}

// AddReaction inserts a reaction. A second reaction with the same
// (message, user, emoji) triple hits the unique constraint and is
// reported as ErrDuplicateReaction.
func (r *ReactionRepo) AddReaction(ctx context.Context, messageID int, userID int, emoji string) (models.Reaction, error) {
	var reaction models.Reaction
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)
         RETURNING id, message_id, user_id, emoji, created_at`,
		messageID, userID, emoji).StructScan(&reaction)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return models.Reaction{}, ErrDuplicateReaction
		}
		return models.Reaction{}, err
	}
	return reaction, nil
}

// RemoveReaction deletes the user's own reaction and returns the removed row.
func (r *ReactionRepo) RemoveReaction(ctx context.Context, reactionID int, userID int) (models.Reaction, error) {
	var reaction models.Reaction
	err := r.db.QueryRowxContext(ctx,
		`DELETE FROM reactions WHERE id=$1 AND user_id=$2
         RETURNING id, message_id, user_id, emoji, created_at`,
		reactionID, userID).StructScan(&reaction)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Reaction{}, ErrReactionNotFound
	}
	return reaction, err
}

// ListReactions returns all reactions on a message.
func (r *ReactionRepo) ListReactions(ctx context.Context, messageID int) ([]models.Reaction, error) {
	var reactions []models.Reaction
	err := r.db.SelectContext(ctx, &reactions,
		`SELECT id, message_id, user_id, emoji, created_at FROM reactions WHERE message_id=$1 ORDER BY id ASC`,
		messageID)
	return reactions, err
}
