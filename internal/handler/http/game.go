package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/service"
)

type GameHandler struct {
	game *service.GameService
}

func NewGameHandler(game *service.GameService) *GameHandler {
	return &GameHandler{game: game}
}

func (h *GameHandler) Board(c *gin.Context) {
	session, ok := sessionOf(c)
	if !ok {
		return
	}
	cells, err := h.game.Board(c.Request.Context(), session, c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"board": cells})
}

func (h *GameHandler) SelectQuestion(c *gin.Context) {
	session, ok := sessionOf(c)
	if !ok {
		return
	}
	cell, err := h.game.SelectQuestion(c.Request.Context(), session, c.Param("roomId"), c.Param("questionId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{
		"question":       cell,
		"answer_timeout": h.game.AnswerTimeout().Seconds(),
	})
}

// SubmitAnswerRequest takes an option index or one of "timeout", "skip", "pass".
type SubmitAnswerRequest struct {
	Answer *domain.Answer `json:"answer" binding:"required"`
}

func (h *GameHandler) SubmitAnswer(c *gin.Context) {
	session, ok := sessionOf(c)
	if !ok {
		return
	}
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.game.SubmitAnswer(c.Request.Context(), session, c.Param("roomId"), c.Param("questionId"), *req.Answer)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, res)
}
