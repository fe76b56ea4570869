package router

import (
	"net/http"

	"dealerhub-api/internal/handler"
	"dealerhub-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler           *handler.Handler
	InventoryHandler  *handler.InventoryHandler
	CredentialHandler *handler.CredentialHandler
	AdminHandler      *handler.AdminHandler
	AuthMiddleware    func(http.Handler) http.Handler
	AllowedOrigins    []string
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// PUBLIC routes
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			// Health endpoints are let through by the auth middleware
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			r.Route("/users/{user_id}/inventory/{provider}", func(r chi.Router) {
				if cfg.InventoryHandler != nil {
					r.Post("/sync", cfg.InventoryHandler.Sync)
					r.Get("/status", cfg.InventoryHandler.Status)
					r.Get("/listings", cfg.InventoryHandler.Listings)
				}
				if cfg.CredentialHandler != nil {
					r.Get("/credentials", cfg.CredentialHandler.Get)
					r.Put("/credentials", cfg.CredentialHandler.Put)
					r.Delete("/credentials", cfg.CredentialHandler.Delete)
				}
			})

			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Get("/stats", cfg.AdminHandler.GetStats)
					r.Get("/health", cfg.AdminHandler.GetHealth)
					r.Post("/sync/sweep", cfg.AdminHandler.Sweep)
				})
			}
		})
	})

	return r
}
