package http

import "github.com/gin-gonic/gin"

// Routes bundles every handler mounted on the engine.
type Routes struct {
	Auth        *AuthHandler
	Presence    *PresenceHandler
	Matchmaking *MatchmakingHandler
	Room        *RoomHandler
	Game        *GameHandler
	Health      *HealthHandler
	WSRoom      gin.HandlerFunc
	WSLobby     gin.HandlerFunc
}

// Register mounts the public API. requireAuth guards everything but register,
// login, ping, health and the QR image; limits run before it in order.
func (rt Routes) Register(r *gin.Engine, requireAuth gin.HandlerFunc, limits ...gin.HandlerFunc) {
	r.GET("/ping", rt.Health.Ping)
	r.GET("/healthz", rt.Health.Healthz)

	api := r.Group("/api", limits...)
	{
		auth := api.Group("/auth")
		auth.POST("/register", rt.Auth.Register)
		auth.POST("/login", rt.Auth.Login)
		auth.POST("/logout", requireAuth, rt.Auth.Logout)

		api.GET("/rooms/code/:code/qr.png", rt.Room.JoinQR)

		authed := api.Group("", requireAuth)
		authed.GET("/me", rt.Auth.Me)

		presence := authed.Group("/presence")
		presence.PUT("", rt.Presence.SetStatus)
		presence.POST("/heartbeat", rt.Presence.Heartbeat)
		presence.GET("/online", rt.Presence.Online)
		presence.GET("/waiting", rt.Presence.Waiting)

		mm := authed.Group("/matchmaking/requests")
		mm.POST("", rt.Matchmaking.Send)
		mm.GET("/incoming", rt.Matchmaking.Incoming)
		mm.GET("/outgoing", rt.Matchmaking.Outgoing)
		mm.POST("/:id/respond", rt.Matchmaking.Respond)

		rooms := authed.Group("/rooms")
		rooms.POST("", rt.Room.CreateRoom)
		rooms.GET("", rt.Room.ListOpen)
		rooms.POST("/join", rt.Room.JoinRoom)
		rooms.GET("/:roomId", rt.Room.GetRoom)
		rooms.POST("/:roomId/start", rt.Room.StartRoom)
		rooms.POST("/:roomId/leave", rt.Room.LeaveRoom)
		rooms.POST("/:roomId/finish", rt.Room.FinishRoom)
		rooms.GET("/:roomId/board", rt.Game.Board)
		rooms.POST("/:roomId/questions/:questionId/select", rt.Game.SelectQuestion)
		rooms.POST("/:roomId/questions/:questionId/answer", rt.Game.SubmitAnswer)
	}

	if rt.WSRoom != nil && rt.WSLobby != nil {
		ws := r.Group("/ws", requireAuth)
		ws.GET("/room/:roomId", rt.WSRoom)
		ws.GET("/lobby", rt.WSLobby)
	}
}
