package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"quiz-arena/internal/domain"
)

// Context keys set by Auth.
const (
	SessionKey = "session"
	UserIDKey  = "user_id"
)

// Authenticator resolves a bearer token to an active session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Session, error)
}

var (
	ErrMissingToken   = errors.New("missing bearer token")
	ErrMalformedToken = errors.New("authorization header must be 'Bearer <token>'")
)

// Auth rejects requests without a valid session token. Browsers cannot set
// headers on websocket upgrades, so a token query parameter is accepted too.
func Auth(auth Authenticator) gin.HandlerFunc {
	if auth == nil {
		panic("Authenticator cannot be nil for Auth middleware")
	}

	return func(c *gin.Context) {
		token, err := extractToken(c)
		if err != nil {
			logrus.WithError(err).Debug("Auth middleware: no usable token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		session, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			logrus.WithError(err).Warn("Auth middleware: Invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(SessionKey, session)
		c.Set(UserIDKey, session.UserID)
		logrus.WithField("user_id", session.UserID).Debug("Auth middleware: User authenticated via JWT")
		c.Next()
	}
}

// SessionFrom returns the session Auth stored on the context.
func SessionFrom(c *gin.Context) (*domain.Session, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*domain.Session)
	return s, ok && s != nil
}

func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if t := c.Query("token"); t != "" {
			return t, nil
		}
		return "", ErrMissingToken
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrMalformedToken
	}
	return parts[1], nil
}
