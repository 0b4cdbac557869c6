package repository

import (
	"context"
	"time"

	"quiz-arena/internal/domain"
)

type PresenceRepository interface {
	// Upsert writes the whole row keyed by user_id.
	Upsert(ctx context.Context, p *domain.Presence) error

	// Touch refreshes last_seen and keeps the current status.
	// Returns ErrPresenceNotFound when the user has no row yet.
	Touch(ctx context.Context, userID string, at time.Time) error

	FindByUserID(ctx context.Context, userID string) (*domain.Presence, error)

	// ListActiveSince returns rows with status != offline and last_seen > since,
	// newest first.
	ListActiveSince(ctx context.Context, since time.Time) ([]domain.Presence, error)

	// MarkStaleOffline sets status offline where last_seen <= before. Returns rows changed.
	MarkStaleOffline(ctx context.Context, before time.Time) (int64, error)
}
