package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/raeesrind/GT-MCQS-Creator/internal/handlers"
	"github.com/raeesrind/GT-MCQS-Creator/internal/middleware"
	"github.com/raeesrind/GT-MCQS-Creator/internal/websocket"
)

func New(
	deviceAuth *middleware.DeviceAuth,
	sessionHandler *handlers.SessionHandler,
	notesHandler *handlers.NotesHandler,
	testsHandler *handlers.TestsHandler,
	resultsHandler *handlers.ResultsHandler,
	jobsHandler *handlers.JobsHandler,
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

	// Token issue and upload are the only state-creating public surfaces
	tokenLimiter := middleware.NewRateLimiter(10, time.Minute)
	uploadLimiter := middleware.NewRateLimiter(20, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Device session (public) ────
		r.Group(func(r chi.Router) {
			r.Use(tokenLimiter.Middleware)
			r.Post("/session/token", sessionHandler.IssueToken)
		})

		// ──── Notes ────
		r.Route("/notes", func(r chi.Router) {
			r.Use(deviceAuth.Middleware)
			r.Group(func(r chi.Router) {
				r.Use(uploadLimiter.Middleware)
				r.Post("/", notesHandler.Upload)
			})
			r.Get("/", notesHandler.List)
			r.Get("/{id}", notesHandler.Get)
			r.Delete("/{id}", notesHandler.Delete)
		})

		// ──── Tests ────
		r.Route("/tests", func(r chi.Router) {
			r.Use(deviceAuth.Middleware)
			r.Post("/practice", testsHandler.StartPractice)
			r.Post("/grand", testsHandler.StartGrand)

			r.Route("/active", func(r chi.Router) {
				r.Get("/", testsHandler.GetActive)
				r.Put("/answers", testsHandler.SaveAnswer)
				r.Post("/submit", testsHandler.Submit)
				r.Delete("/", testsHandler.Abandon)
			})
		})

		// ──── Results ────
		r.Route("/results", func(r chi.Router) {
			r.Use(deviceAuth.Middleware)
			r.Get("/", resultsHandler.List)
			r.Get("/{id}", resultsHandler.Get)
		})

		// ──── Jobs ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(deviceAuth.Middleware)
			r.Get("/{id}", jobsHandler.Get)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
