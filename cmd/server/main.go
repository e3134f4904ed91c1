package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ammar1510/chathub/internal/api"
	"github.com/ammar1510/chathub/internal/auth"
	"github.com/ammar1510/chathub/internal/chat"
	"github.com/ammar1510/chathub/internal/config"
	"github.com/ammar1510/chathub/internal/logger"
	"github.com/ammar1510/chathub/internal/session"
	"github.com/ammar1510/chathub/internal/storage"
	internalWs "github.com/ammar1510/chathub/internal/websocket"
)

var log = logger.New("server")

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	logFile, err := logger.Setup(cfg.LogFile)
	if err != nil {
		log.Error("Failed to open log file: %v", err)
		os.Exit(1)
	}
	defer logFile.Close()

	if cfg.LogLevel != "" {
		level, ok := logger.ParseLevel(cfg.LogLevel)
		if !ok {
			log.Warn("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		}
		logger.SetMinLevel(level)
	}
	log.Info("Server logging initialized, output directed to console and %s", cfg.LogFile)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Storage selection runs in the background; early callers block on it
	selector := storage.NewSelector(cfg.StorageTimeout, func() storage.Store {
		return storage.NewMemoryStore(cfg.MessageRetention)
	})
	selectCtx, cancelSelect := context.WithCancel(context.Background())
	defer cancelSelect()

	var embeddedOutput io.Writer
	if logger.IsDevelopment() {
		embeddedOutput = os.Stdout
	}
	go selector.Select(selectCtx, storage.DurableCandidates(storage.Options{
		Driver:               cfg.DBType,
		DSN:                  cfg.DatabaseURL,
		Embedded:             cfg.EmbeddedPostgres,
		EmbeddedPort:         cfg.EmbeddedPostgresPort,
		ConnectTimeout:       cfg.DBConnectTimeout,
		EmbeddedStartTimeout: cfg.EmbeddedStartTimeout,
		EmbeddedOutput:       embeddedOutput,
		MaxMessages:          cfg.MessageRetention,
	})...)

	jwt := auth.NewJWT([]byte(cfg.JWTSecret), cfg.TokenTTL)
	verifier := auth.NewTokenVerifier(jwt, selector)

	wsManager := internalWs.NewManager(internalWs.Options{
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	hub := chat.NewHub(selector, verifier, session.NewRegistry(), wsManager, chat.Options{
		MaxMessageLength: cfg.MaxMessageLength,
		HistoryLimit:     cfg.HistoryLimit,
	})
	wsManager.SetHandler(hub)

	// Initialize router with default middleware (logger and recovery)
	router := gin.Default()
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	api.RegisterRoutes(router, api.Routes{
		Auth:      api.NewAuthHandler(selector, jwt, hub),
		Messages:  api.NewMessageHandler(selector, cfg.HistoryLimit),
		Verifier:  verifier,
		WebSocket: wsManager.HandleWebSocket,
	})
	router.GET("/health", api.Health(selector.Backend))

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	go func() {
		log.Info("Server starting on %s", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Failed to start server: %v", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}

	cancelSelect()
	if err := selector.Close(); err != nil {
		log.Error("Failed to close storage: %v", err)
	}

	log.Info("Server exited properly")
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}
