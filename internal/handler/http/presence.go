package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/service"
)

type PresenceHandler struct {
	presence *service.PresenceService
}

func NewPresenceHandler(presence *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

type SetStatusRequest struct {
	Status domain.PresenceStatus `json:"status" binding:"required"`
}

func (h *PresenceHandler) SetStatus(c *gin.Context) {
	session, ok := sessionOf(c)
	if !ok {
		return
	}
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.presence.SetStatus(c.Request.Context(), session, req.Status); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	session, ok := sessionOf(c)
	if !ok {
		return
	}
	if err := h.presence.Heartbeat(c.Request.Context(), session); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PresenceHandler) Online(c *gin.Context) {
	rows, err := h.presence.ListOnline(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"players": rows})
}

func (h *PresenceHandler) Waiting(c *gin.Context) {
	session, ok := sessionOf(c)
	if !ok {
		return
	}
	rows, err := h.presence.ListWaiting(c.Request.Context(), session)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"players": rows})
}
