package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RobertDiep/dify-slackbot/internal/handler"
	"github.com/RobertDiep/dify-slackbot/internal/middleware"
	"github.com/RobertDiep/dify-slackbot/pkg/logger"
)

// routes groups the handlers mounted on the server.
type routes struct {
	events *handler.EventsHandler
	health *handler.HealthHandler
	// config is nil when the admin API is disabled.
	config    *handler.ConfigHandler
	jwtSecret string
}

func newRouter(rt routes, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.NotFound)

	r.Get("/health", rt.health.Health)
	r.Get("/ready", rt.health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/slack/events", rt.events.Handle)
	r.Get("/slack/events", rt.events.Verify)

	if rt.config != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(middleware.CORS())
			r.Use(middleware.Auth(rt.jwtSecret))

			r.With(middleware.RequireScope(middleware.ScopeConfigRead)).Get("/config", rt.config.Get)
			r.With(middleware.RequireScope(middleware.ScopeConfigWrite)).Put("/config", rt.config.Put)
		})
	}

	return r
}
