// FilePath: internal/repository/repository.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/verdantio/aquahub/internal/database"
	"github.com/verdantio/aquahub/internal/models"
)

var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")
	// ErrDuplicate indicates that a resource already exists
	ErrDuplicate = errors.New("resource already exists")
	// ErrInvalidInput indicates that the input data is invalid
	ErrInvalidInput = errors.New("invalid input")
	// ErrStaleWatermark indicates a progress update lost the
	// compare-and-swap against a concurrent delivery
	ErrStaleWatermark = errors.New("stale session watermark")
)

// SessionRepository defines the interface for streaming session state
type SessionRepository interface {
	database.Repository
	Create(ctx context.Context, session *models.StreamingSession) error
	Get(ctx context.Context, id string) (*models.StreamingSession, error)
	Update(ctx context.Context, session *models.StreamingSession) error
	// AdvanceProgress moves the watermark from fromRow to toRow with a
	// compare-and-swap on last_row_sent; returns ErrStaleWatermark when
	// a concurrent delivery already advanced it.
	AdvanceProgress(ctx context.Context, id string, fromRow, toRow, rowsDelta int, sentAt time.Time) error
	// RecordError atomically increments both error counters and forces
	// the session to failed once consecutive errors reach threshold.
	RecordError(ctx context.Context, id, message string, at time.Time, threshold int) (consecutive int, forcedFail bool, err error)
	ListOpenByConfig(ctx context.Context, configID string) ([]*models.StreamingSession, error)
}

// ConfigRepository defines the interface for virtual device configurations
type ConfigRepository interface {
	database.Repository
	Get(ctx context.Context, id string) (*models.VirtualDeviceConfig, error)
	GetByUser(ctx context.Context, userID string) (*models.VirtualDeviceConfig, error)
	ListEnabled(ctx context.Context) ([]*models.VirtualDeviceConfig, error)
	SetSessionRef(ctx context.Context, configID string, kind models.DeviceKind, sessionID *string) error
	ClearDeviceRef(ctx context.Context, configID string, kind models.DeviceKind) error
}

// DeviceRepository provides the device lookups the scheduler joins against
type DeviceRepository interface {
	Get(ctx context.Context, id string) (*models.Device, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// ReadingRepository covers the raw readings attributed to a device;
// the scheduler only ever touches them on a discard-data reset
type ReadingRepository interface {
	DeleteByDevice(ctx context.Context, deviceID string) (int64, error)
}

// EventRepository defines the append-only audit trail
type EventRepository interface {
	Append(ctx context.Context, event *models.StreamingEvent) error
	List(ctx context.Context, sessionID string, filter models.EventFilter) (int64, []*models.StreamingEvent, error)
	CountByKind(ctx context.Context, sessionID string) (map[models.EventKind]int64, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
}

// CronRunRepository tracks external-trigger invocations
type CronRunRepository interface {
	Create(ctx context.Context, run *models.CronExecution) error
	Finalize(ctx context.Context, run *models.CronExecution) error
	ListRecent(ctx context.Context, limit int) ([]*models.CronExecution, error)
}

// HealthRepository holds the per-user health metrics row
type HealthRepository interface {
	Get(ctx context.Context, userID string) (*models.HealthMetrics, error)
	Upsert(ctx context.Context, metrics *models.HealthMetrics) error
}

// AlertRepository persists raised operational alerts
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Alert, error)
}
