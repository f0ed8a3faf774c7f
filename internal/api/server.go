// Package api exposes the delivery engine over HTTP: campaign launch, stop,
// status inspection, and a live SSE event stream.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/mailblast/internal/config"
	"github.com/ignite/mailblast/internal/engine"
)

// Server is the HTTP front of the delivery engine.
type Server struct {
	cfg      config.ServerConfig
	handlers *Handlers
	srv      *http.Server
}

// NewServer wires routes around the registry.
func NewServer(cfg config.ServerConfig, registry *engine.Registry) *Server {
	h := NewHandlers(registry)
	return &Server{
		cfg:      cfg,
		handlers: h,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           SetupRoutes(h, cfg.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// SetupRoutes configures the router.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/campaigns/{campaignID}", func(r chi.Router) {
			r.Post("/send", h.SendCampaign)
			r.Post("/stop", h.StopCampaign)
			r.Get("/status", h.CampaignStatus)
			r.Get("/jobs", h.CampaignJobs)
		})
		r.Get("/events/stream", h.StreamEvents)
	})

	return r
}

// Start begins serving. Blocks until the listener fails or is shut down.
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
