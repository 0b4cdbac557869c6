package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/repository"
	"quiz-arena/internal/repository/mocks"
	"quiz-arena/internal/service"
)

func activeSession(userID string) *domain.Session {
	return &domain.Session{
		ID:          "sess-" + userID,
		UserID:      userID,
		DisplayName: userID,
		State:       domain.SessionActive,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func TestPresenceService_SetStatus(t *testing.T) {
	repo := new(mocks.PresenceRepository)
	svc := service.NewPresenceService(repo, 0)
	ctx := context.Background()
	repo.On("Upsert", ctx, mock.MatchedBy(func(p *domain.Presence) bool {
		return p.UserID == "a" && p.Status == domain.PresenceWaiting && !p.LastSeen.IsZero()
	})).Return(nil).Once()

	require.NoError(t, svc.SetStatus(ctx, activeSession("a"), domain.PresenceWaiting))
	repo.AssertExpectations(t)
}

func TestPresenceService_SetStatus_InvalidStatusWritesNothing(t *testing.T) {
	repo := new(mocks.PresenceRepository)
	svc := service.NewPresenceService(repo, 0)

	err := svc.SetStatus(context.Background(), activeSession("a"), domain.PresenceStatus("dancing"))

	assert.ErrorIs(t, err, service.ErrValidation)
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestPresenceService_SetStatus_SwallowsStorageErrors(t *testing.T) {
	repo := new(mocks.PresenceRepository)
	svc := service.NewPresenceService(repo, 0)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("timeout")).Once()

	assert.NoError(t, svc.SetStatus(context.Background(), activeSession("a"), domain.PresenceOnline))
	repo.AssertExpectations(t)
}

func TestPresenceService_Heartbeat_CreatesRowOnFirstBeat(t *testing.T) {
	repo := new(mocks.PresenceRepository)
	svc := service.NewPresenceService(repo, 0)
	ctx := context.Background()
	repo.On("Touch", ctx, "a", mock.AnythingOfType("time.Time")).Return(repository.ErrPresenceNotFound).Once()
	repo.On("Upsert", ctx, mock.MatchedBy(func(p *domain.Presence) bool {
		return p.Status == domain.PresenceOnline
	})).Return(nil).Once()

	require.NoError(t, svc.Heartbeat(ctx, activeSession("a")))
	repo.AssertExpectations(t)
}

func TestPresenceService_ListOnlineAndWaiting(t *testing.T) {
	repo := new(mocks.PresenceRepository)
	svc := service.NewPresenceService(repo, time.Minute)
	ctx := context.Background()
	now := time.Now()
	rows := []domain.Presence{
		{UserID: "me", Status: domain.PresenceWaiting, LastSeen: now},
		{UserID: "b", Status: domain.PresenceWaiting, LastSeen: now.Add(-10 * time.Second)},
		{UserID: "c", Status: domain.PresenceInGame, LastSeen: now.Add(-20 * time.Second)},
		{UserID: "stale", Status: domain.PresenceWaiting, LastSeen: now.Add(-2 * time.Minute)},
		{UserID: "gone", Status: domain.PresenceOffline, LastSeen: now},
	}
	repo.On("ListActiveSince", ctx, mock.AnythingOfType("time.Time")).Return(rows, nil)

	online, err := svc.ListOnline(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, p := range online {
		ids = append(ids, p.UserID)
	}
	assert.Equal(t, []string{"me", "b", "c"}, ids)

	waiting, err := svc.ListWaiting(ctx, activeSession("me"))
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, "b", waiting[0].UserID)
}

func TestPresenceService_ListOnline_StorageError(t *testing.T) {
	repo := new(mocks.PresenceRepository)
	svc := service.NewPresenceService(repo, 0)
	repo.On("ListActiveSince", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	_, err := svc.ListOnline(context.Background())

	assert.ErrorIs(t, err, service.ErrTransient)
}

func TestPresenceService_SweepStale(t *testing.T) {
	repo := new(mocks.PresenceRepository)
	svc := service.NewPresenceService(repo, time.Minute)
	repo.On("MarkStaleOffline", mock.Anything, mock.MatchedBy(func(before time.Time) bool {
		return time.Since(before) >= time.Minute
	})).Return(int64(3), nil).Once()

	n, err := svc.SweepStale(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
