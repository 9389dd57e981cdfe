package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"telehealth/internal/config"
	"telehealth/internal/handlers"
	"telehealth/internal/middleware"
	"telehealth/internal/queue"
	"telehealth/internal/repository"
	"telehealth/internal/routes"
	"telehealth/internal/services"
	"telehealth/internal/websocket"
	"telehealth/pkg/database"
	"telehealth/pkg/logger"
	"telehealth/pkg/telemetry"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize logger
	logger.Init()
	defer logger.Close()

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry: " + err.Error())
	}

	// Initialize database
	db, err := database.InitMongoDB(ctx, cfg.Database.MongoDB)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB: " + err.Error())
	}

	timeout := cfg.Database.MongoDB.OperationTimeout
	users := repository.NewUserRepository(db, timeout)
	appointments := repository.NewAppointmentRepository(db, timeout)
	sessionRepo := repository.NewVideoSessionRepository(db, timeout)
	messageRepo := repository.NewMessageRepository(db, timeout)

	// Optional cross-node presence mirror
	var (
		rdb    *redis.Client
		mirror *repository.RedisPresenceMirror
	)
	if cfg.Database.Redis.URL != "" {
		rdb, err = database.NewRedisClient(ctx, cfg.Database.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis: " + err.Error())
		}
		mirror = repository.NewRedisPresenceMirror(rdb, nodeID(), cfg.Database.Redis.PresenceTTL)
		logger.Info("Redis presence mirror enabled")
	}

	// Optional appointment-completion retry queue
	var (
		producer *queue.CompletionProducer
		retries  services.CompletionRetryQueue
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer = queue.NewCompletionProducer(cfg.Kafka)
		retries = producer
		worker := queue.NewCompletionWorker(cfg.Kafka, appointments, producer)
		go worker.Run(ctx)
		logger.Info("Appointment completion retry queue enabled")
	}

	// Initialize WebSocket hub
	hubCfg := websocket.HubConfig{
		StatsEvery:  cfg.Session.StatsRefreshEvery,
		SweepEvery:  cfg.Session.InactiveSweepEvery,
		MirrorEvery: cfg.Database.Redis.PresenceTTL / 3,
		IdleTimeout: 2 * cfg.Server.WebSocket.PongWait,
	}
	var hub *websocket.Hub
	if mirror != nil {
		hub = websocket.NewHub(mirror, hubCfg)
	} else {
		hub = websocket.NewHub(nil, hubCfg)
	}
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	// Services
	authService := services.NewAuthService(users, cfg.Security.JWT)
	chatService := services.NewChatService(messageRepo, users, appointments, hub)
	conversationService := services.NewConversationService(messageRepo, hub)
	sessionService := services.NewVideoSessionService(sessionRepo, appointments, hub, retries)

	gateway := websocket.NewGateway(hub, chatService, conversationService, sessionService, cfg.Session.StoreTimeout)

	// Initialize Gin router
	if cfg.IsProduction() && !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Recovery(), middleware.Logger(), middleware.CORS(cfg.Server.CORS))

	limiter := middleware.NewRateLimiter(cfg.Server.HTTP.RateLimit, cfg.Server.HTTP.RateBurst)
	go limiter.Run(ctx)

	var shared handlers.SharedPresence
	if mirror != nil {
		shared = mirror
	}
	routes.SetupRoutes(router, routes.Handlers{
		Auth:      handlers.NewAuthHandler(users, hub),
		Sessions:  handlers.NewSessionHandler(sessionService),
		Chat:      handlers.NewChatHandler(chatService, conversationService),
		Presence:  handlers.NewPresenceHandler(hub, shared),
		Admin:     handlers.NewAdminHandler(hub, sessionRepo, messageRepo),
		WebSocket: handlers.NewWebSocketHandler(gateway, cfg.Server.WebSocket, cfg.Chat.MessagesPerMinute),
	}, authService, limiter)

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.HTTP.Host, cfg.App.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":    srv.Addr,
			"version": cfg.App.Version,
			"env":     cfg.App.Environment,
		}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed: " + err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	select {
	case <-hubDone:
	case <-shutdownCtx.Done():
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close completion producer")
		}
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := database.Disconnect(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to disconnect MongoDB")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to flush traces")
	}
	logger.Info("Server stopped")
}

// nodeID names this process in the shared presence mirror.
func nodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return host + "-" + uuid.NewString()[:8]
}
