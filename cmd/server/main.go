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

	"studia-backend/internal/config"
	"studia-backend/internal/database"
	"studia-backend/internal/handlers"
	"studia-backend/internal/middleware"
	"studia-backend/internal/repository"
	"studia-backend/internal/router"
	"studia-backend/internal/services"
	"studia-backend/internal/websocket"
	"studia-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting Studia Backend...")

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
	userRepo := repository.NewUserRepo(pool)
	trackingRepo := repository.NewTrackingRepo(pool)
	sessionRepo := repository.NewStudySessionRepo(pool)
	planRepo := repository.NewStudyPlanRepo(pool)
	calendarRepo := repository.NewCalendarRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	events := services.NewEvents(redisClients.PubSub)
	authService := services.NewAuthService(userRepo, redisClients.Queue, jwtAuth)
	trackingService := services.NewTrackingService(trackingRepo, sessionRepo, events)
	reconcileService := services.NewReconcileService(trackingRepo, trackingService)
	plannerService := services.NewPlannerService(planRepo, sessionRepo)
	calendarProvider := services.NewGoogleCalendarProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, calendarRepo)
	calendarService := services.NewCalendarService(sessionRepo, calendarRepo, calendarProvider)

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	trackingHandler := handlers.NewTrackingHandler(trackingService, reconcileService)
	plannerHandler := handlers.NewPlannerHandler(plannerService)
	calendarHandler := handlers.NewCalendarHandler(calendarService)

	// ──── Step 5: Start Reconcile Worker Pool ────
	workerPool := worker.NewPool(redisClients.Queue, reconcileService, cfg.WorkerCount)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	sweepScheduler := services.NewSweepScheduler(redisClients.Queue, time.Duration(cfg.SweepIntervalSecs)*time.Second)
	sweepScheduler.Start()
	log.Println("✓ Sweep scheduler started")

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth)
	log.Println("✓ WebSocket hub started")

	// ──── Step 7: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		authHandler,
		trackingHandler,
		plannerHandler,
		calendarHandler,
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
		sweepScheduler.Stop()
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Studia Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
