package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatewarden/internal/admission"
	"github.com/gatewarden/internal/config"
	"github.com/gatewarden/internal/handler"
	"github.com/gatewarden/internal/integration"
	"github.com/gatewarden/internal/kafka"
	"github.com/gatewarden/internal/postgres"
	"github.com/gatewarden/internal/rank"
	"github.com/gatewarden/internal/ratelimit"
	"github.com/gatewarden/internal/redis"
	"github.com/gatewarden/internal/service"
	"github.com/gatewarden/internal/session"
	"github.com/gatewarden/internal/websocket"
	"github.com/gatewarden/internal/worker"
	"github.com/gatewarden/internal/xp"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	board, err := redis.NewLeaderboard(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer board.Close()
	logger.Info("connected to Redis")

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := repo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize admission state machine
	sessions := session.NewStore()
	controller := admission.NewController(sessions, repo, &cfg.Purgatory, logger)

	// Initialize progression pipeline
	limiter := ratelimit.NewLimiter(repo, &cfg.RateLimit, logger)
	calculator := xp.NewCalculator(&cfg.XP)
	ladder := rank.NewLadder(&cfg.Ranks)
	rankSync := integration.FromConfig(&cfg.RankSync, logger)
	if rankSync.Available() {
		logger.Info("rank sync webhook enabled", "url", cfg.RankSync.WebhookURL)
	}

	progression := service.NewProgressionService(
		repo,
		limiter,
		calculator,
		ladder,
		board,
		wsHub,
		rankSync,
		&cfg.Leaderboard,
		logger,
	)

	// Initialize session cleanup worker
	cleanupWorker := worker.NewCleanupWorker(controller, limiter, &cfg.Cleanup, logger)
	if cfg.Cleanup.Enabled {
		if err := cleanupWorker.Start(ctx); err != nil {
			logger.Error("failed to start cleanup worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize leaderboard sync worker
	syncWorker := worker.NewSyncWorker(board, repo, &cfg.Sync, logger)

	// Rebuild the leaderboard from the database on startup (recovery)
	logger.Info("rebuilding XP leaderboard from database")
	if err := syncWorker.Rebuild(ctx); err != nil {
		logger.Warn("failed to rebuild leaderboard on startup", "error", err)
	}

	if cfg.Sync.Enabled {
		if err := syncWorker.Start(ctx); err != nil {
			logger.Error("failed to start sync worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for gameplay event ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, progression, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(controller, progression, repo, wsHub, cfg.Server.DenyMessage, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket hub
	wsHub.Stop()

	// Stop Kafka consumer
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// Stop workers
	if err := cleanupWorker.Stop(); err != nil {
		logger.Error("failed to stop cleanup worker", "error", err)
	}
	if err := syncWorker.Stop(); err != nil {
		logger.Error("failed to stop sync worker", "error", err)
	}

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
}
