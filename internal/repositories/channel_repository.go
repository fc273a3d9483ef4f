package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-relay/internal/models"
)

var ErrChannelNotFound = errors.New("channel not found")

// ChannelRepository abstracts channel persistence.
type ChannelRepository interface {
	CreateChannel(ctx context.Context, name string, creatorID int) (models.Channel, error)
	GetChannel(ctx context.Context, channelID int) (models.Channel, error)
	ListChannels(ctx context.Context) ([]models.Channel, error)
	DeleteChannel(ctx context.Context, channelID int) (bool, error)
}

// ChannelRepo is a sqlx implementation of ChannelRepository.
type ChannelRepo struct {
	db *sqlx.DB
}

// NewChannelRepo constructs a ChannelRepo.
func NewChannelRepo(db *sqlx.DB) *ChannelRepo {
	return &ChannelRepo{db: db}
}

// CreateChannel inserts a channel and returns the stored row.
func (r *ChannelRepo) CreateChannel(ctx context.Context, name string, creatorID int) (models.Channel, error) {
	var ch models.Channel
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO channels (name, creator_id) VALUES ($1, $2) RETURNING id, name, creator_id, created_at`,
		name, creatorID).StructScan(&ch)
	return ch, err
}

// GetChannel fetches a channel by id.
func (r *ChannelRepo) GetChannel(ctx context.Context, channelID int) (models.Channel, error) {
	var ch models.Channel
	err := r.db.GetContext(ctx, &ch, `SELECT id, name, creator_id, created_at FROM channels WHERE id=$1`, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Channel{}, ErrChannelNotFound
	}
	return ch, err
}

// ListChannels returns all channels, newest first.
func (r *ChannelRepo) ListChannels(ctx context.Context) ([]models.Channel, error) {
	var channels []models.Channel
	err := r.db.SelectContext(ctx, &channels,
		`SELECT id, name, creator_id, created_at FROM channels ORDER BY created_at DESC`)
	return channels, err
}

// DeleteChannel removes a channel. Returns false when no row matched.
func (r *ChannelRepo) DeleteChannel(ctx context.Context, channelID int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM channels WHERE id=$1`, channelID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
