package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raeesrind/GT-MCQS-Creator/internal/config"
	"github.com/raeesrind/GT-MCQS-Creator/internal/database"
	"github.com/raeesrind/GT-MCQS-Creator/internal/handlers"
	"github.com/raeesrind/GT-MCQS-Creator/internal/middleware"
	"github.com/raeesrind/GT-MCQS-Creator/internal/router"
	"github.com/raeesrind/GT-MCQS-Creator/internal/scoring"
	"github.com/raeesrind/GT-MCQS-Creator/internal/services"
	"github.com/raeesrind/GT-MCQS-Creator/internal/store"
	"github.com/raeesrind/GT-MCQS-Creator/internal/websocket"
	"github.com/raeesrind/GT-MCQS-Creator/internal/worker"
)

func main() {
	log.Println("🚀 Starting GT MCQS Creator...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	noteRepo := store.NewNoteRepo(pool)
	sessionRepo := store.NewSessionRepo(pool)
	resultRepo := store.NewResultRepo(pool)
	jobRepo := store.NewJobRepo(pool)

	// ──── Step 5: Initialize Gemini Client ────
	geminiService, err := services.NewGeminiService(
		cfg.GeminiAPIKey,
		cfg.GeminiConcurrentReqs,
		redisClients.Queue,
	)
	if err != nil {
		log.Fatalf("✗ Gemini client initialization failed: %v", err)
	}
	defer geminiService.Close()
	log.Println("✓ Gemini Flash client initialized")

	// ──── Initialize Services ────
	deviceAuth := middleware.NewDeviceAuth(cfg.DeviceTokenSecret)
	extractService := services.NewPDFExtractService(cfg.PdftoppmPath)
	scoringEngine := scoring.NewEngine(scoring.NewDefaultClassifier(), geminiService)

	// ──── Initialize Handlers ────
	sessionHandler := handlers.NewSessionHandler(deviceAuth)
	notesHandler := handlers.NewNotesHandler(noteRepo, jobRepo, redisClients.Queue, cfg.StoragePath, cfg.MaxUploadMB)
	testsHandler := handlers.NewTestsHandler(noteRepo, sessionRepo, resultRepo, jobRepo, redisClients.Queue, scoringEngine)
	resultsHandler := handlers.NewResultsHandler(resultRepo)
	jobsHandler := handlers.NewJobsHandler(jobRepo)

	// ──── Step 6: Start Job Worker Pool ────
	workerPool := worker.NewPool(
		redisClients.Queue,
		geminiService,
		extractService,
		jobRepo,
		noteRepo,
		sessionRepo,
		cfg.WorkerCount,
	)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, deviceAuth)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		deviceAuth,
		sessionHandler,
		notesHandler,
		testsHandler,
		resultsHandler,
		jobsHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ GT MCQS Creator ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
