package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spectreweave/orchestrator/app"
	"github.com/spectreweave/orchestrator/handlers"
	"github.com/spectreweave/orchestrator/middleware"
)

// SetupRoutes configures all application routes and middleware.
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CallerKey)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.CallerKeyHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	generateHandler := handlers.NewGenerateHandler(deps.Orchestrator, deps.Logger)
	chatHandler := handlers.NewChatHandler(deps.Orchestrator, deps.Logger)
	statusHandler := handlers.NewStatusHandler(handlers.StatusSources{
		Breakers: deps.Breakers,
		Health:   deps.Health,
		Cache:    deps.Cache,
		Usage:    deps.Usage,
	})

	// Health check
	r.Get("/healthz", handlers.HealthCheck)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/generate", generateHandler.HandleGenerate)
		r.Post("/generate/stream", generateHandler.HandleStream)
		r.Post("/chat/completions", chatHandler.HandleChatCompletion)

		r.Get("/providers", statusHandler.HandleProviders)
		r.Get("/usage", statusHandler.HandleUsage)
		r.Post("/usage/reset", statusHandler.HandleUsageReset)
	})

	return r
}
