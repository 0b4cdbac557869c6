package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/middleware"
)

func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, data)
}

// bindError answers a request whose body failed to bind.
func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
}

// sessionOf returns the caller's session or answers 401.
func sessionOf(c *gin.Context) (*domain.Session, bool) {
	s, ok := middleware.SessionFrom(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return nil, false
	}
	return s, true
}
