package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mroshb/campus_match/internal/api"
	"github.com/mroshb/campus_match/internal/config"
	"github.com/mroshb/campus_match/internal/database"
	"github.com/mroshb/campus_match/internal/middleware"
	"github.com/mroshb/campus_match/internal/notify"
	"github.com/mroshb/campus_match/internal/realtime"
	"github.com/mroshb/campus_match/internal/repositories"
	"github.com/mroshb/campus_match/internal/services"
	"github.com/mroshb/campus_match/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Initialize logger
	logger.Init()
	defer logger.Sync()

	logger.Info("Starting campus match server...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", err)
	}

	// Validate production security settings
	if cfg.AppEnv == "production" {
		if err := cfg.ValidateProductionSecurity(); err != nil {
			logger.Fatal("Production security validation failed", err)
		}
		logger.Info("Production security validation passed")
	}

	// Connect to database with TLS
	db, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", err)
	}

	// Run GORM auto-migration
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker, err := realtime.FromConfig(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to start realtime broker", err)
	}
	defer broker.Close()

	store := repositories.NewStore(db)
	notifier, stopNotifier, err := notify.FromConfig(cfg, store.Users)
	if err != nil {
		logger.Fatal("Failed to start notifier", err)
	}

	settings := services.SettingsFromConfig(cfg)
	emitter := services.NewEmitter(broker, notifier)
	sessions := services.NewSessionService(store, emitter, services.SystemClock)
	pairing := services.NewPairingService(store, store.Users, sessions, emitter, settings, services.SystemClock)
	messages := services.NewMessageService(store, sessions, broker, emitter, settings, services.SystemClock)
	matches := services.NewMatchService(store, store.Users, emitter, services.SystemClock)

	// Start background jobs
	sweeper := services.NewSweeper(sessions, pairing, cfg.GetSweepInterval(), settings.SweepBatchSize)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(ctx)
	}()

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerUser, cfg.RateLimitPerIP, time.Minute)
	defer limiter.Stop()

	server, err := api.New(api.Services{
		Matches:  matches,
		Pairing:  pairing,
		Sessions: sessions,
		Messages: messages,
	}, api.Config{JWTSecret: cfg.JWTSecret, RateLimiter: limiter})
	if err != nil {
		logger.Fatal("Failed to build API", err)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server started successfully", "env", cfg.AppEnv, "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", err)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}

	// The sweeper and in-flight requests emit notifications; stop the
	// notifier only after both are done.
	<-sweeperDone
	stopNotifier()
	logger.Info("Server stopped")
}
