package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ammar1510/tutorchat/internal/api"
	"github.com/ammar1510/tutorchat/internal/attachments"
	"github.com/ammar1510/tutorchat/internal/auth"
	"github.com/ammar1510/tutorchat/internal/config"
	"github.com/ammar1510/tutorchat/internal/conversations"
	"github.com/ammar1510/tutorchat/internal/database"
	"github.com/ammar1510/tutorchat/internal/logger"
	"github.com/ammar1510/tutorchat/internal/service"
	internalWs "github.com/ammar1510/tutorchat/internal/websocket"
)

var log = logger.New("server")

func main() {
	if err := run(); err != nil {
		log.Error("Server failed: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run() error {
	defer logger.Sync()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	// .env is loaded by now, so the environment is final
	logger.Configure(cfg.Env)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	auth.InitJWTKey([]byte(cfg.JWTSecret))

	ctx := context.Background()

	db, err := database.NewDatabase(ctx, database.Options{
		Type:             database.DatabaseType(cfg.DBType),
		URL:              databaseURL(cfg),
		MongoName:        cfg.MongoDB,
		FallbackToMemory: cfg.DBFallbackMemory,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("Connected to %s database", db.Backend())

	files, err := attachmentStore(ctx, cfg)
	if err != nil {
		return err
	}

	wsManager := internalWs.NewManager(internalWs.Options{
		AllowedOrigins:    cfg.AllowedOrigins,
		MessagesPerSecond: cfg.WSMessagesPerSecond,
		Burst:             cfg.WSMessageBurst,
	})
	defer wsManager.Close()

	limits := attachments.Limits{
		MaxFiles: attachments.DefaultMaxFiles,
		MaxBytes: cfg.AttachmentMaxBytes,
	}
	messages := service.NewMessageService(db, db, files, wsManager, service.Options{
		Limits:       limits,
		BroadcastAll: cfg.WSBroadcastAll,
	})
	aggregator := conversations.NewAggregator(db, db, db)

	// Access lines go through AccessLog, which redacts query tokens
	router := gin.New()
	router.Use(gin.Recovery(), api.AccessLog())
	router.MaxMultipartMemory = cfg.AttachmentMaxBytes

	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	handlers := &api.Handlers{
		Messages:      api.NewMessageHandler(messages, limits),
		Conversations: api.NewConversationHandler(aggregator),
		Users:         api.NewUserHandler(db),
		WebSocket:     wsManager.HandleWebSocket,
	}
	handlers.Register(router)

	router.GET("/health", func(c *gin.Context) {
		connections, users := wsManager.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": connections,
			"users":       users,
		})
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}
	log.Info("Shutting down server...")

	// Give the server 5 seconds to finish processing remaining requests
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("Server exited properly")
	return nil
}

func corsConfig(origins []string) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		// Credentials cannot be combined with a wildcard origin
		corsCfg.AllowAllOrigins = true
		return corsCfg
	}
	corsCfg.AllowOrigins = origins
	corsCfg.AllowCredentials = true
	return corsCfg
}

func databaseURL(cfg *config.Config) string {
	if database.DatabaseType(cfg.DBType) == database.Mongo {
		return cfg.MongoURI
	}
	return cfg.DatabaseURL
}

func attachmentStore(ctx context.Context, cfg *config.Config) (attachments.Store, error) {
	if cfg.S3Bucket == "" {
		log.Warn("S3_BUCKET not set, messages with files will be rejected")
		return attachments.Disabled{}, nil
	}

	store, err := attachments.NewS3Store(ctx, attachments.S3Options{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		PublicBaseURL: cfg.S3PublicBaseURL,
	})
	if err != nil {
		return nil, err
	}
	log.Info("Attachments stored in bucket %s", cfg.S3Bucket)
	return store, nil
}
