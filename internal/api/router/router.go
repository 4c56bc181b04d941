// Package router assembles the HTTP surface of the platform.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/serenai/emotion-ai-platform/internal/analysis"
	httpmiddleware "github.com/serenai/emotion-ai-platform/internal/http/middleware"
	"github.com/serenai/emotion-ai-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	AnalysisHandler    *analysis.Handler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints.
	r.Group(func(public chi.Router) {
		public.Get("/health", cfg.AnalysisHandler.Health)
		public.Route("/chat", func(r chi.Router) {
			r.Post("/send", cfg.AnalysisHandler.SendMessage)
			r.Post("/transcribe", cfg.AnalysisHandler.TranscribeAudio)
			r.Get("/history", cfg.AnalysisHandler.EmotionalHistory)
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Operator endpoints behind admin auth.
	r.Group(func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		admin.Route("/admin", func(r chi.Router) {
			r.Get("/alerts", cfg.AnalysisHandler.PendingAlerts)
			r.Post("/alerts/{alertID}/resolve", cfg.AnalysisHandler.ResolveAlert)
			r.Get("/statistics", cfg.AnalysisHandler.Statistics)
		})
	})

	return r
}
