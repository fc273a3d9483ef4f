package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-relay/internal/auth"
	"chat-relay/internal/clients"
	"chat-relay/internal/config"
	"chat-relay/internal/db"
	"chat-relay/internal/handlers"
	"chat-relay/internal/middleware"
	"chat-relay/internal/observability"
	"chat-relay/internal/repositories"
	"chat-relay/internal/telemetry"
	"chat-relay/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), "chat-relay", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown error: %v", err)
		}
	}()

	publisher := observability.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)

	audit := telemetry.NewAuditEmitter(publisher, "audit.chat-relay", "chat-relay", cfg.Environment)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	userClient := clients.NewUserClient(cfg.UserServiceAddr)

	channelRepo := repositories.NewChannelRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	conversationRepo := repositories.NewConversationRepo(database)
	reactionRepo := repositories.NewReactionRepo(database)

	registry := ws.NewRegistry()
	broadcaster := ws.NewBroadcaster(registry)
	protocol := ws.NewProtocol(broadcaster, messageRepo, conversationRepo, userClient)
	wsHandler := ws.NewHandler(registry, broadcaster, protocol, verifier)

	channelHandler := handlers.NewChannelHandler(channelRepo, broadcaster, audit)
	messageHandler := handlers.NewMessageHandler(channelRepo, messageRepo, conversationRepo, userClient)
	reactionHandler := handlers.NewReactionHandler(reactionRepo, messageRepo, broadcaster)
	uploadHandler := handlers.NewUploadHandler(cfg.UploadDir)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("failed to create upload dir: %v", err)
	}

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chat-relay"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/api/channels", authMiddleware, channelHandler.ListChannels)
	router.POST("/api/channels", authMiddleware, channelHandler.CreateChannel)
	router.DELETE("/api/channels/:id", authMiddleware, channelHandler.DeleteChannel)
	router.GET("/api/channels/:id/messages", authMiddleware, messageHandler.GetChannelMessages)
	router.GET("/api/messages/:id/thread", authMiddleware, messageHandler.GetThreadMessages)
	router.GET("/api/dm/:userId", authMiddleware, messageHandler.GetDirectMessages)
	router.GET("/api/conversations", authMiddleware, messageHandler.ListConversations)
	router.GET("/api/search", authMiddleware, messageHandler.SearchMessages)
	router.GET("/api/messages/:id/reactions", authMiddleware, reactionHandler.ListReactions)
	router.POST("/api/messages/:id/reactions", authMiddleware, reactionHandler.AddReaction)
	router.DELETE("/api/messages/:id/reactions/:reactionId", authMiddleware, reactionHandler.RemoveReaction)
	router.POST("/api/upload", authMiddleware, uploadHandler.Upload)
	router.Static("/uploads", cfg.UploadDir)

	router.GET("/ws", wsHandler.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
