package repository

import (
	"context"
	"time"
)

// SessionStore tracks signed-out token ids until their natural expiry.
type SessionStore interface {
	Revoke(ctx context.Context, sessionID string, until time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}
