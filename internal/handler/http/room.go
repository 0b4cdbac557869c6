package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/service"
)

const (
	defaultQRSize = 320
	minQRSize     = 128
	maxQRSize     = 1024
)

type RoomHandler struct {
	roomService *service.RoomService
	// joinURL prefixes a room code in the QR join link, e.g. https://quiz.example/join/
	joinURL string
}

func NewRoomHandler(roomService *service.RoomService, joinURL string) *RoomHandler {
	return &RoomHandler{roomService: roomService, joinURL: joinURL}
}

type CreateRoomRequest struct {
	Config     domain.GameConfig `json:"config"`
	MaxPlayers int               `json:"max_players"`
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	session, ok := sessionOf(c)
	if !ok {
		return
	}
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	state, err := h.roomService.Create(c.Request.Context(), session, req.Config, req.MaxPlayers)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{"user_id": session.UserID, "room_id": state.Room.ID, "room_code": state.Room.RoomCode}).
		Info("Handler.CreateRoom: Room created successfully")
	SuccessResponse(c, http.StatusCreated, state)
}

type JoinRoomRequest struct {
	RoomCode string `json:"room_code" binding:"required"`
}

func (h *RoomHandler) JoinRoom(c *gin.Context) {
	session, ok := sessionOf(c)
	if !ok {
		return
	}
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	state, err := h.roomService.Join(c.Request.Context(), session, req.RoomCode)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, state)
}

func (h *RoomHandler) ListOpen(c *gin.Context) {
	session, ok := sessionOf(c)
	if !ok {
		return
	}
	rooms, err := h.roomService.ListOpen(c.Request.Context(), session)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"rooms": rooms})
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	h.roomAction(c, h.roomService.Get)
}

func (h *RoomHandler) StartRoom(c *gin.Context) {
	h.roomAction(c, h.roomService.Start)
}

func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	h.roomAction(c, h.roomService.Leave)
}

func (h *RoomHandler) FinishRoom(c *gin.Context) {
	h.roomAction(c, h.roomService.Finish)
}

type roomOp func(ctx context.Context, session *domain.Session, roomID string) (*domain.RoomState, error)

func (h *RoomHandler) roomAction(c *gin.Context, op roomOp) {
	session, ok := sessionOf(c)
	if !ok {
		return
	}
	state, err := op(c.Request.Context(), session, c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, state)
}

// JoinQR renders the join link of a room as a PNG QR code.
func (h *RoomHandler) JoinQR(c *gin.Context) {
	room, err := h.roomService.FindByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	size := defaultQRSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < minQRSize || n > maxQRSize {
			ErrorResponse(c, http.StatusBadRequest, "size must be between 128 and 1024")
			return
		}
		size = n
	}

	png, err := qrcode.Encode(h.joinLink(c, room.RoomCode), qrcode.Medium, size)
	if err != nil {
		logrus.WithError(err).WithField("room_code", room.RoomCode).Error("Handler.JoinQR: qr generation failed")
		ErrorResponse(c, http.StatusInternalServerError, "qr generation failed")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// joinLink uses the configured prefix, or derives one from the request.
func (h *RoomHandler) joinLink(c *gin.Context, code string) string {
	if h.joinURL != "" {
		return strings.TrimRight(h.joinURL, "/") + "/" + code
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if fwd := c.GetHeader("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + c.Request.Host + "/join/" + code
}
