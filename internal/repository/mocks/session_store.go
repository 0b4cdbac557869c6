package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"quiz-arena/internal/repository"
)

// SessionStore is a mock of repository.SessionStore.
type SessionStore struct {
	mock.Mock
}

func (m *SessionStore) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	return m.Called(ctx, sessionID, until).Error(0)
}

func (m *SessionStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

var _ repository.SessionStore = (*SessionStore)(nil)
