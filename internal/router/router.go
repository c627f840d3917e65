package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"studia-backend/internal/handlers"
	"studia-backend/internal/middleware"
	"studia-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	trackingHandler *handlers.TrackingHandler,
	plannerHandler *handlers.PlannerHandler,
	calendarHandler *handlers.CalendarHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	// Reconcile fallback limiter: it's a sweep, not a polling endpoint
	reconcileLimiter := middleware.NewRateLimiter(6, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})

		// ──── Lesson Tracking Routes ────
		r.Route("/tracking", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/start", trackingHandler.Start)
			r.Post("/{id}/events", trackingHandler.RecordEvent)
			r.Post("/complete", trackingHandler.Complete)
			r.Get("/active", trackingHandler.GetActive)

			r.Group(func(r chi.Router) {
				r.Use(reconcileLimiter.Middleware)
				r.Post("/reconcile", trackingHandler.Reconcile)
			})
		})

		// ──── Study Plan Routes ────
		r.Route("/plans/{planId}", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/sessions", plannerHandler.CreateSession)
			r.Post("/sessions/actions", plannerHandler.Actions)
		})

		// ──── Calendar Routes ────
		r.Route("/calendar", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/check-changes", calendarHandler.CheckChanges)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
