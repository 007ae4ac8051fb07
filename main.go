package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"coach-chat/internal/auth"
	"coach-chat/internal/config"
	"coach-chat/internal/db"
	"coach-chat/internal/handlers"
	"coach-chat/internal/middleware"
	"coach-chat/internal/observability"
	"coach-chat/internal/rabbitmq"
	"coach-chat/internal/realtime"
	"coach-chat/internal/repositories"
	"coach-chat/internal/storage"
	"coach-chat/internal/telemetry"
	"coach-chat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	log, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Env)
	if err != nil {
		log.Fatal("failed to init tracing", zap.Error(err))
	}

	database, err := db.Connect(cfg.DatabaseDSN, cfg.FeedChannel, log)
	if err != nil {
		log.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("invalid redis url", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}

	messageRepo := repositories.NewMessageRepo(database)
	roomRepo := repositories.NewRoomMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)
	gateway := repositories.NewGateway(messageRepo, roomRepo)

	blobs := storage.NewRedisBlobStore(rdb, cfg.MediaBaseURL, cfg.MediaTTL, log)
	sessions := auth.NewSessionValidator(rdb, cfg.SessionPrefix)

	hub := realtime.NewHub(0, log)
	events, err := realtime.NewPGFeed(cfg.DatabaseDSN, cfg.FeedChannel, hub, log)
	if err != nil {
		log.Fatal("failed to start feed listener", zap.Error(err))
	}
	defer events.Close()
	go func() {
		if err := events.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("feed listener stopped", zap.Error(err))
		}
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	log.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Env, log)

	conversationHandler := handlers.NewConversationHandler(gateway, cfg.FeedLimit)
	userHandler := handlers.NewUserHandler(userRepo)
	mediaHandler := handlers.NewMediaHandler(blobs)
	feedWS := ws.NewFeedHandler(ws.FeedHandlerConfig{
		Gateway:   gateway,
		Blobs:     blobs,
		Events:    events,
		Validator: sessions,
		Publisher: publisher,
		Audit:     audit,
		Limit:     cfg.FeedLimit,
		Logger:    log,
	})

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(handlers.RequestID())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws/feed", feedWS.Handle)
	router.GET("/media/:owner/:file", mediaHandler.Get)

	api := router.Group("/api", middleware.AuthMiddleware(sessions))
	api.GET("/conversations", conversationHandler.ListConversations)
	api.GET("/conversations/unread", conversationHandler.UnreadCount)
	api.POST("/conversations/:peer_id/read", conversationHandler.MarkRead)
	api.GET("/feeds/:scope/history", conversationHandler.History)
	api.GET("/me", userHandler.Me)
	api.GET("/users", userHandler.ListByRole)

	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
