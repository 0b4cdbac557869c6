package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/repository"
)

const (
	minPasswordLength = 8
	maxUsernameLength = 50
)

// sessionClaims is the JWT body. ID (jti) doubles as the session id.
type sessionClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// AuthService issues and checks sessions.
type AuthService struct {
	userRepo  repository.UserRepository
	sessions  repository.SessionStore
	presence  repository.PresenceRepository
	jwtSecret []byte
	jwtExpiry time.Duration
	now       func() time.Time
}

// NewAuthService wires the service. jwtExpiryHours <= 0 falls back to 24 hours.
func NewAuthService(userRepo repository.UserRepository, sessions repository.SessionStore, presence repository.PresenceRepository, jwtSecretKey string, jwtExpiryHours int) (*AuthService, error) {
	if userRepo == nil || sessions == nil || presence == nil {
		panic("UserRepository, SessionStore and PresenceRepository cannot be nil for AuthService")
	}
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24
	}
	return &AuthService{
		userRepo:  userRepo,
		sessions:  sessions,
		presence:  presence,
		jwtSecret: []byte(jwtSecretKey),
		jwtExpiry: time.Duration(jwtExpiryHours) * time.Hour,
		now:       time.Now,
	}, nil
}

// Register creates an account. The returned user never carries the password hash.
func (s *AuthService) Register(ctx context.Context, username, password, displayName string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	displayName = strings.TrimSpace(displayName)
	logCtx := logrus.WithField("username", username)

	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrValidation)
	}
	if len(username) > maxUsernameLength {
		return nil, fmt.Errorf("%w: username must be at most %d characters", ErrValidation, maxUsernameLength)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	if displayName == "" {
		displayName = username
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		logCtx.WithError(err).Error("Failed to hash password during registration")
		return nil, err
	}

	user := &domain.User{
		Username:    username,
		DisplayName: displayName,
		Password:    hashedPassword,
	}
	if err := s.userRepo.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.Warn("Registration failed: username already exists")
			return nil, ErrUsernameTaken
		}
		logCtx.WithError(err).Error("Database error during user creation")
		return nil, classify(err)
	}

	logCtx.WithField("user_id", user.ID).Info("User registered successfully")
	user.Password = ""
	return user, nil
}

// Login checks the credentials and returns an active session with its signed token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.Session, string, error) {
	logCtx := logrus.WithField("username", username)

	user, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logCtx.Warn("Login attempt failed: user not found")
			return nil, "", ErrAuthenticationFailed
		}
		logCtx.WithError(err).Error("Login attempt failed: error finding user")
		return nil, "", classify(err)
	}
	if !checkPassword(password, user.Password) {
		logCtx.Warn("Login attempt failed: invalid password")
		return nil, "", ErrAuthenticationFailed
	}

	now := s.now()
	session := &domain.Session{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		State:       domain.SessionLogin,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.jwtExpiry),
	}
	token, err := s.generateJWT(session)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate JWT token during login")
		return nil, "", err
	}
	session.Activate()

	logCtx.WithFields(logrus.Fields{"user_id": user.ID, "session_id": session.ID}).Info("User logged in successfully")
	return session, token, nil
}

// Authenticate turns a bearer token back into an active session.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*domain.Session, error) {
	claims := &sessionClaims{}
	parser := jwt.Parser{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, fmt.Errorf("%w: token expired", ErrAuthenticationFailed)
		}
		return nil, fmt.Errorf("%w: invalid token", ErrAuthenticationFailed)
	}
	if claims.UserID == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: token is missing claims", ErrAuthenticationFailed)
	}

	revoked, err := s.sessions.IsRevoked(ctx, claims.ID)
	if err != nil {
		logrus.WithError(err).WithField("session_id", claims.ID).Error("Failed to check session revocation")
		return nil, classify(err)
	}
	if revoked {
		return nil, ErrSessionRevoked
	}

	session := &domain.Session{
		ID:          claims.ID,
		UserID:      claims.UserID,
		DisplayName: claims.Name,
		State:       domain.SessionActive,
		ExpiresAt:   claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	return session, nil
}

// Logout revokes the session until its natural expiry and marks the user offline.
// The presence write is best effort; the revocation is not.
func (s *AuthService) Logout(ctx context.Context, session *domain.Session) error {
	if err := requireActive(session, s.now()); err != nil {
		return err
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": session.UserID, "session_id": session.ID})

	if err := s.sessions.Revoke(ctx, session.ID, session.ExpiresAt); err != nil {
		logCtx.WithError(err).Error("Failed to revoke session")
		return classify(err)
	}
	writePresence(ctx, s.presence, session.UserID, session.DisplayName, domain.PresenceOffline, s.now())
	session.SignOut()
	logCtx.Info("User logged out")
	return nil
}

// UserByID returns the account behind a session.
func (s *AuthService) UserByID(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, classify(err)
	}
	user.Password = ""
	return user, nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to generate hash from password: %w", err)
	}
	return string(bytes), nil
}

func checkPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *AuthService) generateJWT(session *domain.Session) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		UserID: session.UserID,
		Name:   session.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}
