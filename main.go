package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"nebula-chat/internal/auth"
	"nebula-chat/internal/config"
	"nebula-chat/internal/db"
	"nebula-chat/internal/handlers"
	"nebula-chat/internal/logging"
	"nebula-chat/internal/middleware"
	"nebula-chat/internal/observability"
	"nebula-chat/internal/rabbitmq"
	"nebula-chat/internal/ratelimit"
	"nebula-chat/internal/repositories"
	"nebula-chat/internal/telemetry"
	"nebula-chat/internal/ws"
)

const serviceName = "nebula-chat"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(cfg.LogFile, cfg.LogLevel, cfg.Environment == "production")
	defer func() { _ = logger.Sync() }()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	shutdownTracing, err := observability.SetupTracing(context.Background(), cfg.OTLPEndpoint, serviceName, cfg.Environment, logger)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)

	emitter := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, serviceName, cfg.Environment, logger)

	userRepo := repositories.NewUserRepo(database)
	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	if cfg.MaxMessageAgeDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -cfg.MaxMessageAgeDays)
		deleted, err := messageRepo.DeleteOlderThan(context.Background(), cutoff)
		if err != nil {
			logger.Error("startup cleanup failed", zap.Error(err))
		} else if deleted > 0 {
			logger.Info("startup cleanup completed",
				zap.Int64("deleted", deleted),
				zap.Int("max_age_days", cfg.MaxMessageAgeDays),
			)
		}
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	limiter := ratelimit.New(cfg.RateLimit, cfg.RateWindow)
	hub := ws.NewHub(logger)
	presence := ws.NewPresence(userRepo, hub, logger)

	wsHandler := ws.NewHandler(hub, presence, limiter, verifier, userRepo, roomRepo, messageRepo, publisher, cfg.MaxMessageLength, logger)
	roomHandler := handlers.NewRoomHandler(roomRepo, userRepo, hub, emitter, logger)
	messageHandler := handlers.NewMessageHandler(roomRepo, messageRepo, logger)
	reactionHandler := handlers.NewReactionHandler(roomRepo, messageRepo, userRepo, hub, logger)
	userHandler := handlers.NewUserHandler(userRepo, logger)
	adminHandler := handlers.NewAdminHandler(messageRepo, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(otelgin.Middleware(serviceName))

	authMiddleware := middleware.AuthMiddleware(verifier)

	api := router.Group("/api", authMiddleware)
	api.GET("/rooms", roomHandler.ListRooms)
	api.POST("/rooms/private/:user_id", roomHandler.CreatePrivateRoom)
	api.POST("/rooms/group", roomHandler.CreateGroup)
	api.POST("/rooms/:room_id/invite", roomHandler.InviteToRoom)
	api.GET("/rooms/:room_id/members", roomHandler.GetRoomMembers)
	api.GET("/rooms/:room_id/messages", messageHandler.GetMessages)
	api.POST("/messages/:message_id/react", reactionHandler.React)
	api.GET("/users/search", userHandler.SearchUsers)
	api.POST("/admin/cleanup-messages", adminHandler.CleanupMessages)

	router.GET("/ws", wsHandler.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, emitter, cfg.DebugRoutes)

	logger.Info("server starting", zap.String("port", cfg.Port))
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
