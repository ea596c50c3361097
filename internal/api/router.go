// Package api provides the HTTP control surface for RideAlert. The UI drives
// the core through it: destination trips, waiting alerts, preferences, and
// pushed device positions.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ridealert/ridealert/internal/api/handler"
	"github.com/ridealert/ridealert/internal/api/middleware"
	"github.com/ridealert/ridealert/internal/destination"
	"github.com/ridealert/ridealert/internal/location"
	"github.com/ridealert/ridealert/internal/prefs"
	"github.com/ridealert/ridealert/internal/waiting"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	ServiceName string
	Logger      zerolog.Logger
	Metrics     *middleware.Metrics

	Registry    *waiting.Registry
	Monitor     *destination.Monitor
	Preferences *prefs.Service
	Tracker     *location.Tracker
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "ridealertd"
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
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime)
	alertHandler := handler.NewAlertHandler(cfg.Registry)
	destinationHandler := handler.NewDestinationHandler(cfg.Monitor)
	preferencesHandler := handler.NewPreferencesHandler(cfg.Preferences)
	locationHandler := handler.NewLocationHandler(cfg.Tracker)

	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)
	locationRateLimit := middleware.RateLimitByIP(middleware.LocationRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", alertHandler.ListAlerts)
			r.Post("/", alertHandler.CreateAlert)
			r.Delete("/", alertHandler.DeleteAllAlerts)
			r.Delete("/{alertId}", alertHandler.DeleteAlert)
		})

		r.Route("/destination", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", destinationHandler.GetDestination)
			r.Put("/", destinationHandler.SetDestination)
			r.Delete("/", destinationHandler.ClearDestination)
		})

		r.Route("/preferences", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", preferencesHandler.GetPreferences)
			r.Patch("/", preferencesHandler.UpdatePreferences)
		})

		// Position updates arrive continuously while riding.
		r.With(locationRateLimit).Post("/location", locationHandler.PushPosition)
	})

	return r
}
