package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-arena/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type tokenTable map[string]*domain.Session

func (t tokenTable) Authenticate(_ context.Context, token string) (*domain.Session, error) {
	if s, ok := t[token]; ok {
		return s, nil
	}
	return nil, errors.New("bad token")
}

func authRouter() *gin.Engine {
	r := gin.New()
	r.Use(Auth(tokenTable{"good": {ID: "jti", UserID: "u1", State: domain.SessionActive}}))
	r.GET("/me", func(c *gin.Context) {
		s, ok := SessionFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, s.UserID+"/"+c.GetString(UserIDKey))
	})
	return r
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		query    string
		wantCode int
		wantBody string
	}{
		{"bearer header", "Bearer good", "", http.StatusOK, "u1/u1"},
		{"case-insensitive scheme", "bearer good", "", http.StatusOK, "u1/u1"},
		{"query token", "", "?token=good", http.StatusOK, "u1/u1"},
		{"missing", "", "", http.StatusUnauthorized, ErrMissingToken.Error()},
		{"malformed", "Token good", "", http.StatusUnauthorized, "Bearer"},
		{"rejected", "Bearer bad", "", http.StatusUnauthorized, "Invalid or expired token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			authRouter().ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestAuth_NilAuthenticatorPanics(t *testing.T) {
	assert.Panics(t, func() { Auth(nil) })
}

type countingLimiter struct {
	counts   map[string]int
	err      error
	subjects []string
}

func (l *countingLimiter) Exceeded(_ context.Context, scope, subject string, limit int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.counts[scope+"|"+subject]++
	l.subjects = append(l.subjects, subject)
	return l.counts[scope+"|"+subject] > limit, nil
}

func TestRateLimit(t *testing.T) {
	limiter := &countingLimiter{counts: map[string]int{}}
	r := gin.New()
	r.Use(RateLimit(limiter, "api", 2, time.Minute))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_KeysAuthenticatedUsers(t *testing.T) {
	limiter := &countingLimiter{counts: map[string]int{}}
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(UserIDKey, "u7"); c.Next() })
	r.Use(RateLimit(limiter, "api", 5, time.Minute))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"user:u7"}, limiter.subjects)
}

func TestRateLimit_CounterError(t *testing.T) {
	limiter := &countingLimiter{counts: map[string]int{}, err: errors.New("redis down")}
	r := gin.New()
	r.Use(RateLimit(limiter, "api", 5, time.Minute))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
