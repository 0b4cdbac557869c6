package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"quiz-arena/internal/changefeed"
	httpHandler "quiz-arena/internal/handler/http"
	wsHandler "quiz-arena/internal/handler/websocket"
	"quiz-arena/internal/hub"
	gormpersistence "quiz-arena/internal/infra/persistence/gorm"
	"quiz-arena/internal/infra/setup"
	redisstate "quiz-arena/internal/infra/state/redis"
	"quiz-arena/internal/middleware"
	"quiz-arena/internal/service"
	"quiz-arena/internal/tasks"
	"quiz-arena/internal/worker"
)

// App holds every long-lived component of the server.
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *sqlx.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	Listener    *changefeed.Listener
	HttpServer  *http.Server

	redisClientOpt asynq.RedisClientOpt
	scheduler      *asynq.Scheduler
	cancel         context.CancelFunc
}

// NewApp wires the application from cfg. cfg must already be validated.
func NewApp(cfg *Config) (*App, error) {
	// 1. Logger
	log := NewLogger(cfg)
	log.SetOutput(os.Stdout)
	logrus.SetOutput(os.Stdout)
	log.Infof("Logger initialized (Level: %s, Format: %T)", log.GetLevel().String(), log.Formatter)

	// 2. Infrastructure
	log.Info("Initializing infrastructure...")
	sqlxDB, gormDB, err := setup.InitDB(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	log.Info("Database initialized")

	if cfg.AutoMigrate {
		if err := setup.MigrateDB(sqlxDB); err != nil {
			_ = sqlxDB.Close()
			return nil, fmt.Errorf("failed to migrate DB: %w", err)
		}
		log.Info("Database migrated")
	}

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		_ = sqlxDB.Close()
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Asynq client initialized")

	// 3. Repositories
	stores := service.Stores{
		Tx:        gormpersistence.NewGormTransactor(gormDB),
		Users:     gormpersistence.NewGormUserRepository(gormDB),
		Presence:  gormpersistence.NewGormPresenceRepository(gormDB),
		Requests:  gormpersistence.NewGormMatchRequestRepository(gormDB),
		Rooms:     gormpersistence.NewGormRoomRepository(gormDB),
		Players:   gormpersistence.NewGormPlayerRepository(gormDB),
		Ledger:    gormpersistence.NewGormRoomQuestionRepository(gormDB),
		Questions: gormpersistence.NewGormQuestionRepository(gormDB),
	}
	broadcaster := redisstate.NewRedisBroadcaster(redisClient, cfg.KeyPrefix)
	sessions := redisstate.NewRedisSessionStore(redisClient, cfg.KeyPrefix)
	limiter := redisstate.NewRateLimiter(redisClient, cfg.KeyPrefix)
	log.Info("Repositories initialized")

	// 4. Services
	authService, err := service.NewAuthService(stores.Users, sessions, stores.Presence, cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		_ = sqlxDB.Close()
		_ = redisClient.Close()
		_ = asynqClient.Close()
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	presenceService := service.NewPresenceService(stores.Presence, cfg.PresenceWindow)
	matchService := service.NewMatchmakingService(stores, cfg.MatchRequestTTL)
	roomService := service.NewRoomService(stores, broadcaster)
	gameService := service.NewGameService(stores, broadcaster, cfg.AnswerTimeout)
	log.Info("Services initialized")

	// 5. Change feed and hub
	feed := changefeed.NewFeed()
	var listener *changefeed.Listener
	if cfg.ChangeFeed {
		listener = changefeed.NewListener(cfg.DatabaseURL, feed)
	}
	hubInstance := hub.NewHub(broadcaster, feed, gameService, presenceService)
	log.Info("Hub initialized")

	// 6. Handlers
	ws := wsHandler.NewWebSocketHandler(hubInstance, roomService, cfg.CORSOrigins)
	routes := httpHandler.Routes{
		Auth:        httpHandler.NewAuthHandler(authService),
		Presence:    httpHandler.NewPresenceHandler(presenceService),
		Matchmaking: httpHandler.NewMatchmakingHandler(matchService),
		Room:        httpHandler.NewRoomHandler(roomService, cfg.JoinURL),
		Game:        httpHandler.NewGameHandler(gameService),
		Health: httpHandler.NewHealthHandler(map[string]httpHandler.Check{
			"postgres": sqlxDB.PingContext,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		}),
		WSRoom:  ws.HandleRoom,
		WSLobby: ws.HandleLobby,
	}
	log.Info("Handlers initialized")

	// 7. Worker
	workerServer := worker.NewWorkerServer(redisClientOpt, worker.Sweeps{
		ExpireMatchRequests: matchService.ExpireStale,
		SweepPresence:       presenceService.SweepStale,
	}, cfg.WorkerConcurrency, log)
	log.Info("Worker server initialized")

	// 8. Router
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	routes.Register(router,
		middleware.Auth(authService),
		middleware.RateLimit(limiter, "api", cfg.RateLimitMax, cfg.RateLimitWindow),
	)
	log.Info("Router setup complete")

	// 9. HTTP server
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           CORS(cfg.CORSOrigins)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Config:         cfg,
		Log:            log,
		DB:             sqlxDB,
		RedisClient:    redisClient,
		AsynqClient:    asynqClient,
		AsynqServer:    workerServer,
		Hub:            hubInstance,
		Listener:       listener,
		HttpServer:     httpServer,
		redisClientOpt: redisClientOpt,
	}, nil
}

// CORS allows browser clients from origins. An empty list allows none.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

// Start launches the background routines and the HTTP server. It returns
// immediately; call Shutdown to stop everything.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	a.Log.Info("Starting application background routines...")
	go a.Hub.Run(ctx)
	a.Log.Info("Hub routine started")

	if a.Listener != nil {
		go a.Listener.Run(ctx)
		a.Log.Info("Change feed listener started")
	}

	go a.AsynqServer.Start()
	a.Log.Info("Asynq worker server routine started")

	a.registerPeriodicTasks()
	a.enqueueCatchUp()

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

func (a *App) registerPeriodicTasks() {
	a.scheduler = asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{Location: time.UTC})

	schedule := fmt.Sprintf("@every %s", a.Config.SweepInterval)
	for _, task := range []*asynq.Task{tasks.NewMatchmakingExpireTask(), tasks.NewPresenceSweepTask()} {
		entryID, err := a.scheduler.Register(schedule, task, asynq.Queue("default"))
		if err != nil {
			a.Log.Errorf("Could not register periodic task %s: %v", task.Type(), err)
			continue
		}
		a.Log.Infof("Periodic task %s registered with schedule '%s' (EntryID: %s)", task.Type(), schedule, entryID)
	}

	scheduler := a.scheduler
	go func() {
		a.Log.Info("Asynq scheduler starting...")
		if err := scheduler.Run(); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			a.Log.Errorf("Asynq scheduler Run() failed: %v", err)
			return
		}
		a.Log.Info("Asynq scheduler stopped.")
	}()
}

// enqueueCatchUp runs both sweeps once at boot so rows that went stale while
// the server was down are cleaned before the first tick.
func (a *App) enqueueCatchUp() {
	for _, task := range []*asynq.Task{tasks.NewMatchmakingExpireTask(), tasks.NewPresenceSweepTask()} {
		info, err := a.AsynqClient.Enqueue(task, asynq.Queue("default"), asynq.Unique(a.Config.SweepInterval))
		if err != nil {
			if errors.Is(err, asynq.ErrDuplicateTask) {
				continue
			}
			a.Log.Warnf("Could not enqueue catch-up task %s: %v", task.Type(), err)
			continue
		}
		a.Log.Debugf("Catch-up task %s enqueued (ID: %s)", task.Type(), info.ID)
	}
}

// Shutdown stops the application in reverse dependency order.
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	if a.cancel != nil {
		a.cancel()
	}
	if a.Hub != nil {
		a.Hub.StopAllSubscriptions()
	}
	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	a.Log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Errorf("Error closing database connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// Migrate applies pending schema migrations and exits.
func Migrate(cfg *Config, log *logrus.Logger) error {
	db, _, err := setup.InitDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to init DB: %w", err)
	}
	defer db.Close()
	if err := setup.MigrateDB(db); err != nil {
		return fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database migrated")
	return nil
}

// LoggerMiddleware logs one line per request, leveled by status code.
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			q := c.Request.URL.Query()
			if q.Has("token") {
				q.Set("token", "redacted")
			}
			path = path + "?" + q.Encode()
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})
		if uid, ok := c.Get(middleware.UserIDKey); ok {
			entry = entry.WithField("user_id", uid)
		}

		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
