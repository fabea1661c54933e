// FilePath: internal/streamer/streamer.go

// Package streamer is the virtual-device streaming scheduler: it maps
// wall-clock time onto recorded dataset timestamps, owns the session
// state machine, runs the cron-triggered delivery loop, and reconciles
// configuration drift. All time and I/O dependencies are injected so a
// tick can be driven by any external scheduler or a test harness.
package streamer

import (
	"time"

	"github.com/verdantio/aquahub/internal/cleanup"
	"github.com/verdantio/aquahub/internal/config"
	"github.com/verdantio/aquahub/internal/dataset"
	"github.com/verdantio/aquahub/internal/errors"
	"github.com/verdantio/aquahub/internal/ingest"
	"github.com/verdantio/aquahub/internal/locking"
	"github.com/verdantio/aquahub/internal/repository"
)

// Clock abstracts time.Now so replay timing is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Service contains all repositories and scheduler-wide dependencies
type Service struct {
	Sessions repository.SessionRepository
	Configs  repository.ConfigRepository
	Devices  repository.DeviceRepository
	Readings repository.ReadingRepository
	Events   repository.EventRepository
	CronRuns repository.CronRunRepository
	Health   repository.HealthRepository
	Alerts   repository.AlertRepository

	Datasets *dataset.Reader
	Ingest   ingest.Client
	Locks    locking.Locker
	Clock    Clock
	Cleanup  *cleanup.CleanupService

	cfg config.StreamingConfig
}

// New creates a new scheduler service instance
func New(
	sessions repository.SessionRepository,
	configs repository.ConfigRepository,
	devices repository.DeviceRepository,
	readings repository.ReadingRepository,
	events repository.EventRepository,
	cronRuns repository.CronRunRepository,
	health repository.HealthRepository,
	alerts repository.AlertRepository,
	datasets *dataset.Reader,
	ingestClient ingest.Client,
	locks locking.Locker,
	clock Clock,
	cfg config.StreamingConfig,
) *Service {
	if clock == nil {
		clock = SystemClock()
	}
	svc := &Service{
		Sessions: sessions,
		Configs:  configs,
		Devices:  devices,
		Readings: readings,
		Events:   events,
		CronRuns: cronRuns,
		Health:   health,
		Alerts:   alerts,
		Datasets: datasets,
		Ingest:   ingestClient,
		Locks:    locks,
		Clock:    clock,
		cfg:      cfg,
	}
	svc.Cleanup = cleanup.New(events, readings)
	return svc
}

// Validate checks if all required dependencies are initialized
func (s *Service) Validate() error {
	if s.Sessions == nil {
		return ErrMissingDependency("sessions")
	}
	if s.Configs == nil {
		return ErrMissingDependency("configs")
	}
	if s.Devices == nil {
		return ErrMissingDependency("devices")
	}
	if s.Readings == nil {
		return ErrMissingDependency("readings")
	}
	if s.Events == nil {
		return ErrMissingDependency("events")
	}
	if s.CronRuns == nil {
		return ErrMissingDependency("cronRuns")
	}
	if s.Health == nil {
		return ErrMissingDependency("health")
	}
	if s.Alerts == nil {
		return ErrMissingDependency("alerts")
	}
	if s.Datasets == nil {
		return ErrMissingDependency("datasets")
	}
	if s.Ingest == nil {
		return ErrMissingDependency("ingest")
	}
	if s.Locks == nil {
		return ErrMissingDependency("locks")
	}
	return nil
}

func ErrMissingDependency(name string) error {
	return errors.NewInternalError("missing dependency: "+name, nil)
}

func (s *Service) failureThreshold() int {
	if s.cfg.FailureThreshold <= 0 {
		return 10
	}
	return s.cfg.FailureThreshold
}

func (s *Service) alertThresholdMinutes() int {
	if s.cfg.AlertThresholdMinutes <= 0 {
		return 360
	}
	return s.cfg.AlertThresholdMinutes
}

func (s *Service) sessionLockTTL() time.Duration {
	if s.cfg.SessionLockTTL <= 0 {
		return 4 * time.Minute
	}
	return s.cfg.SessionLockTTL
}
