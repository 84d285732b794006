package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"poll-service/internal/api/routes"
	"poll-service/internal/config"
	"poll-service/internal/database"
	"poll-service/internal/kafka"
	"poll-service/internal/pollstate"
	"poll-service/internal/repositories/postgres"
	"poll-service/internal/services"
	"poll-service/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	slog.Info("Starting poll sync server")

	// Initialize Redis connection
	redisClient, err := database.NewRedisConnection(cfg.Redis.URI)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Initialize PostgreSQL connection
	db, err := database.NewPostgresConnection(cfg.Database.URI)
	if err != nil {
		slog.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}

	// Initialize services
	cacheService := services.NewPollCacheService(redisClient, cfg.Poll.CacheTTL)
	pollRepo := postgres.NewPollRepository(db)
	voteJournal := kafka.NewJournal(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer voteJournal.Close()

	stateManager := pollstate.NewManager(pollstate.Config{
		RecencyWindow: cfg.Poll.RecencyWindow,
		StaleAge:      cfg.Poll.StaleAge,
		SweepInterval: cfg.Poll.SweepInterval,
	})
	stateManager.StartSweep()
	defer stateManager.StopSweep()

	pollService := services.NewPollSyncService(stateManager, pollRepo, cacheService, voteJournal)

	// Initialize WebSocket hub
	hub := websocket.NewHub(cacheService)
	go hub.Run()

	// Bridge the hub transport into the poll service
	pollService.Attach(websocket.NewHubTransport(hub))
	defer pollService.Detach()

	// Initialize router with all dependencies
	router := routes.NewRouter(hub, pollService)
	router.SetupRoutes()

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop WebSocket hub
	hub.Stop()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped")
}
