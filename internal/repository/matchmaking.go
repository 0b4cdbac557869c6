package repository

import (
	"context"
	"time"

	"quiz-arena/internal/domain"
)

type MatchRequestRepository interface {
	// Create inserts a pending request. A second pending request for the same
	// unordered pair yields ErrDuplicateEntry.
	Create(ctx context.Context, req *domain.MatchRequest) error

	FindByID(ctx context.Context, id string) (*domain.MatchRequest, error)

	// FindOpenBetween returns the pending, unexpired request between a and b in either
	// direction, or ErrRequestNotFound.
	FindOpenBetween(ctx context.Context, a, b string, now time.Time) (*domain.MatchRequest, error)

	// ListOpenByTarget / ListOpenByRequester filter out expired rows at read time.
	ListOpenByTarget(ctx context.Context, userID string, now time.Time) ([]domain.MatchRequest, error)
	ListOpenByRequester(ctx context.Context, userID string, now time.Time) ([]domain.MatchRequest, error)

	// Resolve moves a pending, unexpired request addressed to targetID to status.
	// It reports false when no row matched, leaving classification to the caller.
	Resolve(ctx context.Context, id, targetID string, status domain.MatchStatus, now time.Time) (bool, error)

	// AttachRoom records the room created for an accepted request.
	AttachRoom(ctx context.Context, id, roomID string) error

	// ExpireStale marks pending rows past expires_at as expired. With a non-empty pair
	// only rows between those two users are touched.
	ExpireStale(ctx context.Context, now time.Time, pair ...string) (int64, error)
}
