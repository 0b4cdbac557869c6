package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/repository"
)

// PresenceRepository is a mock of repository.PresenceRepository.
type PresenceRepository struct {
	mock.Mock
}

func (m *PresenceRepository) Upsert(ctx context.Context, p *domain.Presence) error {
	return m.Called(ctx, p).Error(0)
}

func (m *PresenceRepository) Touch(ctx context.Context, userID string, at time.Time) error {
	return m.Called(ctx, userID, at).Error(0)
}

func (m *PresenceRepository) FindByUserID(ctx context.Context, userID string) (*domain.Presence, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(*domain.Presence)
	return p, args.Error(1)
}

func (m *PresenceRepository) ListActiveSince(ctx context.Context, since time.Time) ([]domain.Presence, error) {
	args := m.Called(ctx, since)
	rows, _ := args.Get(0).([]domain.Presence)
	return rows, args.Error(1)
}

func (m *PresenceRepository) MarkStaleOffline(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

var _ repository.PresenceRepository = (*PresenceRepository)(nil)
