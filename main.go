package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"groupchat-service/internal/auth"
	"groupchat-service/internal/config"
	"groupchat-service/internal/db"
	"groupchat-service/internal/handlers"
	"groupchat-service/internal/middleware"
	"groupchat-service/internal/observability"
	"groupchat-service/internal/rabbitmq"
	"groupchat-service/internal/repositories"
	"groupchat-service/internal/telemetry"
	"groupchat-service/internal/ws"
)

func main() {
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatalf("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown error: %v", err)
		}
	}()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("event publisher mode=%s reason=%s", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	auditEmitter := telemetry.NewAuditEmitter(publisher, "audit.chat", cfg.ServiceName, cfg.Environment)

	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret, userRepo)
	rooms := ws.NewRoomTable()
	presence := ws.NewPresenceStore()
	eventRouter := ws.NewRouter(rooms, groupRepo, messageRepo, userRepo, auditEmitter)
	manager := ws.NewManager(verifier, eventRouter, presence, cfg.SendBuffer)
	wsHandler := ws.NewHandler(manager, eventRouter, ws.Options{
		MaxMessageSize: cfg.MaxMessageSize,
		RateLimit:      cfg.RateLimit,
	})
	presenceHandler := handlers.NewPresenceHandler(presence, userRepo)

	router := gin.New()

	// middlewares
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online_users": presence.OnlineCount()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/presence/:user_id", authMiddleware, presenceHandler.GetPresence)
	router.GET("/ws", wsHandler.Handle)
	handlers.RegisterDebugRoutes(router, authMiddleware, auditEmitter, rooms, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("groupchat-service listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}
