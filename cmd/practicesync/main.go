package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sagebrook/practicesync/internal/activity"
	"github.com/sagebrook/practicesync/internal/config"
	"github.com/sagebrook/practicesync/internal/db"
	"github.com/sagebrook/practicesync/internal/provider"
	"github.com/sagebrook/practicesync/internal/scheduler"
	enginesync "github.com/sagebrook/practicesync/internal/sync"
	"github.com/sagebrook/practicesync/internal/telemetry"
	"github.com/sagebrook/practicesync/internal/web"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting PracticeSync...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize telemetry (no-op when OTLP_ENDPOINT is unset)
	ctx := context.Background()
	telemetryShutdown, err := telemetry.Setup(ctx, telemetry.Config{
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		Insecure:     cfg.Telemetry.Insecure,
	})
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(flushCtx); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}()

	// Initialize database
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Initialize source adapters
	googleAdapter, err := provider.NewGoogleAdapter(provider.GoogleConfig{
		BaseURL:      cfg.Google.BaseURL,
		PathTemplate: cfg.Google.PathTemplate,
		Username:     cfg.Google.Username,
		Password:     cfg.Google.Password,
	})
	if err != nil {
		log.Fatalf("Failed to initialize google adapter: %v", err)
	}

	practiceAdapter, err := provider.NewPracticeAdapter(provider.PracticeConfig{
		BaseURL: cfg.Practice.BaseURL,
		APIKey:  cfg.Practice.APIKey,
		Timeout: cfg.Practice.Timeout,
	})
	if err != nil {
		log.Fatalf("Failed to initialize practice adapter: %v", err)
	}

	registry := provider.NewRegistry()
	registry.Register(db.SourceGoogle, googleAdapter, googleAdapter)
	registry.Register(db.SourcePracticeManagement, practiceAdapter, practiceAdapter)

	// Initialize sync engine
	reconciler := enginesync.NewReconciler(database, logger)
	links := enginesync.NewLinkResolver(database, database, logger)
	orchestrator := enginesync.NewOrchestrator(database, database, registry, reconciler, links, logger)
	queue := enginesync.NewOutboundQueue(database, registry, logger)

	// Initialize activity tracker and scheduler
	tracker := activity.NewTracker()
	sched := scheduler.New(database, orchestrator, queue, tracker, cfg.Sync.Owners, cfg.Sync.PushInterval)

	// Initialize handlers
	handlers := web.NewHandlers(cfg, database, queue, sched, tracker)

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(web.RequestLogger())
	router.Use(web.SecurityHeaders())

	// Setup routes
	web.SetupRoutes(router, handlers, cfg.RateLimiting.RPS, cfg.RateLimiting.Burst)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	// Start scheduler
	if err := sched.Start(cfg.Sync.Interval); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop scheduler
	sched.Stop()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
