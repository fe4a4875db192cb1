// Package api provides the HTTP API for nighttune.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/nighttune/nighttune/internal/api/handler"
	"github.com/nighttune/nighttune/internal/api/middleware"
	"github.com/nighttune/nighttune/internal/autotune"
	"github.com/nighttune/nighttune/internal/state"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version         string
	BuildTime       string
	Logger          zerolog.Logger
	ServiceName     string
	Metrics         *middleware.Metrics
	Store           *state.Store
	Manager         *autotune.Manager
	ProfileSource   handler.ProfileSourceFactory
	ReadinessProbes []handler.ReadinessProbe
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "nighttune-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS)
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.ReadinessProbes...)
	instanceHandler := handler.NewInstanceHandler(cfg.Store)
	profilesHandler := handler.NewProfilesHandler(cfg.Store, cfg.ProfileSource)
	settingsHandler := handler.NewSettingsHandler(cfg.Store)
	jobsHandler := handler.NewJobsHandler(cfg.Store, cfg.Manager)

	// Upstream-facing endpoints get the strict budget; local reads the
	// standard one.
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit)
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
		})

		r.Route("/instance", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", instanceHandler.GetInstance)
			r.Put("/", instanceHandler.SetInstance)
			r.Delete("/", instanceHandler.ClearInstance)
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", profilesHandler.ListProfiles)
			r.With(expensiveRateLimit).Post("/refresh", profilesHandler.RefreshProfiles)
			r.With(standardRateLimit).Post("/convert", profilesHandler.ConvertProfile)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", settingsHandler.GetSettings)
			r.Put("/", settingsHandler.UpdateSettings)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.With(expensiveRateLimit).Post("/", jobsHandler.SubmitJob)
			r.With(standardRateLimit).Get("/", jobsHandler.ListJobs)
			r.Route("/{jobID}", func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/result", jobsHandler.GetResult)
				r.Post("/profile", jobsHandler.ApplyProfile)
			})
		})
	})

	return r
}
