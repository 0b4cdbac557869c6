package websocket

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quiz-arena/internal/domain"
	httpHandler "quiz-arena/internal/handler/http"
	"quiz-arena/internal/hub"
	"quiz-arena/internal/middleware"
	"quiz-arena/internal/service"
)

// WebSocketHandler upgrades authenticated requests and registers the
// connection with the hub.
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	hub         *hub.Hub
	roomService *service.RoomService
}

// NewWebSocketHandler accepts upgrades from allowedOrigins; "*" or an empty
// list allows any origin.
func NewWebSocketHandler(h *hub.Hub, roomService *service.RoomService, allowedOrigins []string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if roomService == nil {
		panic("RoomService cannot be nil for WebSocketHandler")
	}
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		hub:         h,
		roomService: roomService,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// HandleRoom serves /ws/room/:roomId. Only seated players may connect.
func (h *WebSocketHandler) HandleRoom(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	roomID := c.Param("roomId")
	logCtx := logrus.WithFields(logrus.Fields{"user_id": session.UserID, "room_id": roomID})

	if _, err := h.roomService.Get(c.Request.Context(), session, roomID); err != nil {
		logCtx.WithError(err).Warn("WS Handler: room check failed")
		httpHandler.HandleServiceError(c, err)
		return
	}
	h.attach(c, hub.RoomTopic(roomID), session, logCtx)
}

// HandleLobby serves /ws/lobby: presence and matchmaking hints for the caller.
func (h *WebSocketHandler) HandleLobby(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	logCtx := logrus.WithField("user_id", session.UserID)
	h.attach(c, hub.LobbyTopic(session.UserID), session, logCtx)
}

func (h *WebSocketHandler) attach(c *gin.Context, topic string, session *domain.Session, logCtx *logrus.Entry) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}
	client := hub.NewClient(h.hub, conn, topic, session)
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	if !h.hub.QueueMessage(hub.HubMessage{
		Type:   "register",
		Topic:  client.Topic(),
		UserID: client.UserID(),
		Client: client,
	}) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}
	client.Run()
}
