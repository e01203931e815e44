package chat

import (
	"context"

	"gorm.io/gorm"

	"github.com/pitabwire/frame/datastore/pool"
)

// Repository persists conversation messages.
type Repository struct {
	pool pool.Pool
}

// NewRepository creates a message repository.
func NewRepository(pool pool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// Insert persists a new message.
func (r *Repository) Insert(ctx context.Context, m *Message) error {
	return r.db(ctx, false).Create(m).Error
}

// ListBySession returns a session's messages in conversation order.
func (r *Repository) ListBySession(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	var messages []Message
	q := r.db(ctx, true).
		Where("session_id = ?", sessionID).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&messages).Error
	return messages, err
}

// ListRecent returns the newest messages across all sessions.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var messages []Message
	err := r.db(ctx, true).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}
