package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/repository"
	"quiz-arena/internal/repository/mocks"
	"quiz-arena/internal/service"
)

const jwtSecret = "very-secret-key"

type authDeps struct {
	users    *mocks.UserRepository
	sessions *mocks.SessionStore
	presence *mocks.PresenceRepository
}

func newAuthService(t *testing.T) (*service.AuthService, authDeps) {
	t.Helper()
	deps := authDeps{
		users:    new(mocks.UserRepository),
		sessions: new(mocks.SessionStore),
		presence: new(mocks.PresenceRepository),
	}
	svc, err := service.NewAuthService(deps.users, deps.sessions, deps.presence, jwtSecret, 1)
	require.NoError(t, err)
	return svc, deps
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestNewAuthService_RequiresSecret(t *testing.T) {
	_, err := service.NewAuthService(new(mocks.UserRepository), new(mocks.SessionStore), new(mocks.PresenceRepository), "", 1)
	assert.Error(t, err)
}

func TestAuthService_Register_Success(t *testing.T) {
	// Arrange
	svc, deps := newAuthService(t)
	ctx := context.Background()
	deps.users.On("Save", ctx, mock.MatchedBy(func(user *domain.User) bool {
		return user.Username == "newbie" && user.DisplayName == "Newbie" &&
			bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("StrongPass123")) == nil
	})).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.User).ID = "8a5f8b43-3c64-4a4e-9d64-3d1f1c0a0001"
		}).
		Return(nil).
		Once()

	// Act
	user, err := svc.Register(ctx, "newbie", "StrongPass123", "Newbie")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "8a5f8b43-3c64-4a4e-9d64-3d1f1c0a0001", user.ID)
	assert.Empty(t, user.Password, "the hash never leaves the service")
	deps.users.AssertExpectations(t)
}

func TestAuthService_Register_DisplayNameDefaultsToUsername(t *testing.T) {
	svc, deps := newAuthService(t)
	ctx := context.Background()
	deps.users.On("Save", ctx, mock.MatchedBy(func(user *domain.User) bool {
		return user.DisplayName == "newbie"
	})).Return(nil).Once()

	_, err := svc.Register(ctx, "  newbie ", "StrongPass123", "")

	require.NoError(t, err)
	deps.users.AssertExpectations(t)
}

func TestAuthService_Register_UsernameTaken(t *testing.T) {
	svc, deps := newAuthService(t)
	ctx := context.Background()
	deps.users.On("Save", ctx, mock.AnythingOfType("*domain.User")).Return(repository.ErrDuplicateEntry).Once()

	user, err := svc.Register(ctx, "taken", "StrongPass123", "")

	assert.Nil(t, user)
	assert.ErrorIs(t, err, service.ErrUsernameTaken)
	assert.ErrorIs(t, err, service.ErrConflict)
}

func TestAuthService_Register_Validation(t *testing.T) {
	svc, deps := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "", "StrongPass123", "")
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = svc.Register(ctx, "newbie", "short", "")
	assert.ErrorIs(t, err, service.ErrValidation)

	deps.users.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestAuthService_Register_StorageDown(t *testing.T) {
	svc, deps := newAuthService(t)
	ctx := context.Background()
	deps.users.On("Save", ctx, mock.Anything).Return(errors.New("connection refused")).Once()

	_, err := svc.Register(ctx, "newbie", "StrongPass123", "")

	assert.ErrorIs(t, err, service.ErrTransient)
}

func TestAuthService_LoginAndAuthenticate(t *testing.T) {
	// Arrange
	svc, deps := newAuthService(t)
	ctx := context.Background()
	user := &domain.User{ID: "user-1", Username: "alice", DisplayName: "Alice", Password: hashed(t, "StrongPass123")}
	deps.users.On("FindByUsername", ctx, "alice").Return(user, nil).Once()

	// Act
	session, token, err := svc.Login(ctx, "alice", "StrongPass123")

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, domain.SessionActive, session.State)
	assert.True(t, session.Active(time.Now()))
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, time.Minute)

	deps.sessions.On("IsRevoked", ctx, session.ID).Return(false, nil).Once()
	got, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "Alice", got.DisplayName)
	assert.Equal(t, domain.SessionActive, got.State)
	deps.users.AssertExpectations(t)
	deps.sessions.AssertExpectations(t)
}

func TestAuthService_Login_Failures(t *testing.T) {
	svc, deps := newAuthService(t)
	ctx := context.Background()
	deps.users.On("FindByUsername", ctx, "ghost").Return(nil, repository.ErrUserNotFound).Once()
	deps.users.On("FindByUsername", ctx, "alice").
		Return(&domain.User{ID: "user-1", Username: "alice", Password: hashed(t, "StrongPass123")}, nil).Once()
	deps.users.On("FindByUsername", ctx, "bob").Return(nil, errors.New("db down")).Once()

	_, _, err := svc.Login(ctx, "ghost", "whatever1")
	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)

	_, _, err = svc.Login(ctx, "alice", "WrongPass123")
	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)

	_, _, err = svc.Login(ctx, "bob", "whatever1")
	assert.ErrorIs(t, err, service.ErrTransient)
}

func TestAuthService_Authenticate_Rejections(t *testing.T) {
	svc, deps := newAuthService(t)
	ctx := context.Background()
	deps.users.On("FindByUsername", ctx, "alice").
		Return(&domain.User{ID: "user-1", Username: "alice", Password: hashed(t, "StrongPass123")}, nil)
	session, token, err := svc.Login(ctx, "alice", "StrongPass123")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)

	other, _ := service.NewAuthService(deps.users, deps.sessions, deps.presence, "another-secret", 1)
	_, err = other.Authenticate(ctx, token)
	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)

	deps.sessions.On("IsRevoked", ctx, session.ID).Return(true, nil).Once()
	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, service.ErrSessionRevoked)

	deps.sessions.On("IsRevoked", ctx, session.ID).Return(false, errors.New("redis down")).Once()
	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, service.ErrTransient)
}

func TestAuthService_Logout(t *testing.T) {
	svc, deps := newAuthService(t)
	ctx := context.Background()
	session := &domain.Session{
		ID:          "sess-1",
		UserID:      "user-1",
		DisplayName: "Alice",
		State:       domain.SessionActive,
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	deps.sessions.On("Revoke", ctx, "sess-1", session.ExpiresAt).Return(nil).Once()
	deps.presence.On("Upsert", ctx, mock.MatchedBy(func(p *domain.Presence) bool {
		return p.UserID == "user-1" && p.Status == domain.PresenceOffline
	})).Return(errors.New("presence write failed")).Once()

	err := svc.Logout(ctx, session)

	require.NoError(t, err, "a failed presence write is not surfaced")
	assert.Equal(t, domain.SessionSignedOut, session.State)
	deps.sessions.AssertExpectations(t)
	deps.presence.AssertExpectations(t)

	err = svc.Logout(ctx, session)
	assert.ErrorIs(t, err, service.ErrAuthenticationFailed, "a signed-out session cannot act")
}
