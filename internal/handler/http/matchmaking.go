package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/service"
)

type MatchmakingHandler struct {
	match *service.MatchmakingService
}

func NewMatchmakingHandler(match *service.MatchmakingService) *MatchmakingHandler {
	return &MatchmakingHandler{match: match}
}

type SendRequest struct {
	TargetID string            `json:"target_id" binding:"required"`
	Config   domain.GameConfig `json:"config"`
}

func (h *MatchmakingHandler) Send(c *gin.Context) {
	session, ok := sessionOf(c)
	if !ok {
		return
	}
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	mr, err := h.match.Send(c.Request.Context(), session, req.TargetID, req.Config)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{"request_id": mr.ID, "requester_id": mr.RequesterID, "target_id": mr.TargetID}).
		Info("Handler.Matchmaking: request sent")
	SuccessResponse(c, http.StatusCreated, mr)
}

type RespondRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

func (h *MatchmakingHandler) Respond(c *gin.Context) {
	session, ok := sessionOf(c)
	if !ok {
		return
	}
	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	mr, err := h.match.Respond(c.Request.Context(), session, c.Param("id"), *req.Accept)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, mr)
}

func (h *MatchmakingHandler) Incoming(c *gin.Context) {
	session, ok := sessionOf(c)
	if !ok {
		return
	}
	reqs, err := h.match.ListIncoming(c.Request.Context(), session)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"requests": reqs})
}

func (h *MatchmakingHandler) Outgoing(c *gin.Context) {
	session, ok := sessionOf(c)
	if !ok {
		return
	}
	reqs, err := h.match.ListOutgoing(c.Request.Context(), session)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"requests": reqs})
}
