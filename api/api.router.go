package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/verdantio/aquahub/api/middleware"
	"github.com/verdantio/aquahub/api/resources"
	"github.com/verdantio/aquahub/internal/streamer"
)

type Router struct {
	router    *mux.Router
	auth      *middleware.KeycloakMiddleware
	cron      *middleware.CronAuth
	resources *resources.Resources
}

func NewRouter(svc *streamer.Service, keycloakConfig middleware.KeycloakConfig, cronSecret string) *Router {
	r := &Router{
		router:    mux.NewRouter(),
		auth:      middleware.NewKeycloakMiddleware(keycloakConfig),
		cron:      middleware.NewCronAuth(cronSecret),
		resources: resources.NewResources(svc),
	}

	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	// API version prefix
	api := r.router.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/health", r.resources.Health).Methods(http.MethodGet)

	// External scheduler trigger, shared-secret authenticated
	cron := api.PathPrefix("/cron").Subrouter()
	cron.Use(r.cron.Authenticate)
	cron.HandleFunc("/tick", r.resources.Streaming.TriggerTick).Methods(http.MethodPost)

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(r.auth.Authenticate)

	// Streaming operations
	protected.HandleFunc("/sync", r.resources.Streaming.Sync).Methods(http.MethodPost)
	protected.HandleFunc("/health-check", r.resources.Streaming.HealthCheck).Methods(http.MethodGet)
	protected.HandleFunc("/alerts", r.resources.Streaming.ListAlerts).Methods(http.MethodGet)
	protected.HandleFunc("/runs", r.resources.Streaming.ListRuns).Methods(http.MethodGet)

	// Configuration
	protected.HandleFunc("/config", r.resources.Configs.GetConfig).Methods(http.MethodGet)
	protected.HandleFunc("/config/reset", r.resources.Configs.ResetConfig).Methods(http.MethodPost)

	// Sessions
	sessions := protected.PathPrefix("/sessions").Subrouter()
	sessions.HandleFunc("/{id}/pause", r.resources.Sessions.PauseSession).Methods(http.MethodPost)
	sessions.HandleFunc("/{id}/resume", r.resources.Sessions.ResumeSession).Methods(http.MethodPost)
	sessions.HandleFunc("/{id}/progress", r.resources.Sessions.GetProgress).Methods(http.MethodGet)
	sessions.HandleFunc("/{id}/events", r.resources.Sessions.ListEvents).Methods(http.MethodGet)
	sessions.HandleFunc("/{id}/events/counts", r.resources.Sessions.GetEventCounts).Methods(http.MethodGet)

	// Devices
	devices := protected.PathPrefix("/devices").Subrouter()
	devices.HandleFunc("/{id}", r.resources.Devices.GetDevice).Methods(http.MethodGet)
	devices.HandleFunc("/{id}/test", r.resources.Devices.TestDevice).Methods(http.MethodPost)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
