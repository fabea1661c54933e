// FilePath: internal/server/server.go
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	nuts "github.com/vaudience/go-nuts"

	"github.com/verdantio/aquahub/api"
	"github.com/verdantio/aquahub/api/middleware"
	"github.com/verdantio/aquahub/internal/config"
	"github.com/verdantio/aquahub/internal/database"
	"github.com/verdantio/aquahub/internal/dataset"
	"github.com/verdantio/aquahub/internal/ingest"
	"github.com/verdantio/aquahub/internal/locking"
	"github.com/verdantio/aquahub/internal/monitoring"
	"github.com/verdantio/aquahub/internal/repository/postgres"
	"github.com/verdantio/aquahub/internal/streamer"
)

// Server represents our HTTP server
type Server struct {
	config     *config.Config
	srv        *http.Server
	streamer   *streamer.Service
	monitoring *monitoring.Service
}

// New creates a new server instance
func New(cfg *config.Config) *Server {
	return &Server{
		config: cfg,
	}
}

// Start begins listening for requests
func (s *Server) Start() error {
	// Initialize services
	s.streamer = initializeStreamer(s.config)
	s.monitoring = monitoring.NewService(monitoring.Config{
		PrometheusEndpoint: s.config.Monitoring.PrometheusEndpoint,
		LokiEndpoint:       s.config.Monitoring.LokiEndpoint,
	})

	// Set up cleanup event handlers
	s.setupCleanupHandlers()

	// Build the router with CORS and panic recovery
	router := api.NewRouter(s.streamer, middleware.KeycloakConfig{
		URL:          s.config.Keycloak.URL,
		Realm:        s.config.Keycloak.Realm,
		ClientID:     s.config.Keycloak.ClientID,
		ClientSecret: s.config.Keycloak.ClientSecret,
	}, s.config.Streaming.CronSecret)

	handler := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.CORS(
			handlers.AllowedOrigins([]string{"*"}),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "X-Cron-Secret"}),
		)(router))

	s.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      handler,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	// Start server
	go func() {
		nuts.L.Infof("[Server] Starting server on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nuts.L.Errorf("[Server] Error starting server: %v", err)
			os.Exit(1)
		}
	}()

	return s.waitForShutdown()
}

// waitForShutdown waits for interrupt signal and gracefully shuts down the server
func (s *Server) waitForShutdown() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	nuts.L.Infof("[Server] Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	nuts.L.Infof("[Server] Server shut down successfully")
	return nil
}

func (s *Server) setupCleanupHandlers() {
	// Handle session purge events raised by discard-data resets
	s.streamer.Cleanup.OnCleanup("session.purged", func(id string) {
		nuts.L.Infof("[Cleanup] Session %s and all associated data purged", id)
		s.monitoring.RecordEvent("session_purge", map[string]string{
			"session_id": id,
		})
	})

	s.streamer.Cleanup.OnCleanup("events.purged", func(id string) {
		s.monitoring.RecordEvent("event_purge", map[string]string{
			"session_id": id,
		})
	})

	s.streamer.Cleanup.OnCleanup("readings.purged", func(id string) {
		s.monitoring.RecordEvent("reading_purge", map[string]string{
			"device_id": id,
		})
	})
}

// initializeStreamer creates and configures the scheduler service
func initializeStreamer(cfg *config.Config) *streamer.Service {
	appDB := initAppDB(cfg.Database.AppDB)

	redisClient, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		nuts.L.Fatalf("[Server] Failed to connect to redis: %v", err)
	}

	// Initialize repositories
	sessions := postgres.NewSessionRepository(appDB)
	configs := postgres.NewConfigRepository(appDB)
	devices := postgres.NewDeviceRepository(appDB)
	readings := postgres.NewReadingRepository(appDB)
	events := postgres.NewEventRepository(appDB)
	cronRuns := postgres.NewCronRunRepository(appDB)
	health := postgres.NewHealthRepository(appDB)
	alerts := postgres.NewAlertRepository(appDB)

	datasets := dataset.NewReaderFromConfig(cfg.Datasets.BasePath)
	ingestClient := ingest.New(cfg.Ingest)
	locks := locking.NewRedisLocker(redisClient)

	svc := streamer.New(
		sessions, configs, devices, readings, events, cronRuns, health, alerts,
		datasets, ingestClient, locks, streamer.SystemClock(), cfg.Streaming,
	)
	if err := svc.Validate(); err != nil {
		nuts.L.Fatalf("[Server] Invalid streamer wiring: %v", err)
	}
	return svc
}

func initAppDB(cfg config.PostgresConfig) database.DB {
	wrappedDB, err := database.NewPostgresDB(cfg)
	if err != nil {
		nuts.L.Fatalf("[Server] Failed to connect to AppDB: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wrappedDB.Ping(ctx); err != nil {
		nuts.L.Fatalf("[Server] Failed to ping database: %v", err)
	}
	return wrappedDB
}
