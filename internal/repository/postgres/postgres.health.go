// FilePath: internal/repository/postgres/postgres.health.go
package postgres

import (
	"context"
	"database/sql"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/verdantio/aquahub/internal/database"
	"github.com/verdantio/aquahub/internal/errors"
	"github.com/verdantio/aquahub/internal/models"
)

type HealthRepo struct {
	PostgresBaseRepo
}

func NewHealthRepository(db database.DB) *HealthRepo {
	repo := &PostgresBaseRepo{db: db}
	return &HealthRepo{PostgresBaseRepo: *repo}
}

func (r *HealthRepo) Get(ctx context.Context, userID string) (*models.HealthMetrics, error) {
	metrics := &models.HealthMetrics{}
	query := `SELECT * FROM health_metrics WHERE user_id = $1`

	err := r.db.GetDB().GetContext(ctx, metrics, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("health metrics not found", err)
		}
		return nil, errors.NewDatabaseError("failed to get health metrics", err)
	}
	return metrics, nil
}

// Upsert writes the per-user health row; rows are never deleted, only
// updated in place.
func (r *HealthRepo) Upsert(ctx context.Context, metrics *models.HealthMetrics) error {
	metrics.UpdatedAt = time.Now()

	query := `
		INSERT INTO health_metrics (
			user_id, last_cron_success_at, last_cron_attempt_at,
			last_cron_error, cron_status, consecutive_failures,
			sync_status, active_devices, active_sessions,
			orphaned_sessions, alerts_enabled, alert_threshold_minutes,
			updated_at
		) VALUES (
			:user_id, :last_cron_success_at, :last_cron_attempt_at,
			:last_cron_error, :cron_status, :consecutive_failures,
			:sync_status, :active_devices, :active_sessions,
			:orphaned_sessions, :alerts_enabled, :alert_threshold_minutes,
			:updated_at
		)
		ON CONFLICT (user_id) DO UPDATE SET
			last_cron_success_at = EXCLUDED.last_cron_success_at,
			last_cron_attempt_at = EXCLUDED.last_cron_attempt_at,
			last_cron_error = EXCLUDED.last_cron_error,
			cron_status = EXCLUDED.cron_status,
			consecutive_failures = EXCLUDED.consecutive_failures,
			sync_status = EXCLUDED.sync_status,
			active_devices = EXCLUDED.active_devices,
			active_sessions = EXCLUDED.active_sessions,
			orphaned_sessions = EXCLUDED.orphaned_sessions,
			alerts_enabled = EXCLUDED.alerts_enabled,
			alert_threshold_minutes = EXCLUDED.alert_threshold_minutes,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.GetDB().NamedExecContext(ctx, query, metrics)
	if err != nil {
		return errors.NewDatabaseError("failed to upsert health metrics", err)
	}
	return nil
}

type AlertRepo struct {
	PostgresBaseRepo
}

func NewAlertRepository(db database.DB) *AlertRepo {
	repo := &PostgresBaseRepo{db: db}
	return &AlertRepo{PostgresBaseRepo: *repo}
}

func (r *AlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = nuts.NID("alr", 12)
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO alerts (
			id, user_id, kind, severity, message, created_at
		) VALUES (
			:id, :user_id, :kind, :severity, :message, :created_at
		)`

	_, err := r.db.GetDB().NamedExecContext(ctx, query, alert)
	if err != nil {
		return errors.NewDatabaseError("failed to create alert", err)
	}

	nuts.L.Warnf("[AlertRepo] Raised %s alert for user %s: %s", alert.Severity, alert.UserID, alert.Message)
	return nil
}

func (r *AlertRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Alert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	alerts := []*models.Alert{}
	query := `SELECT * FROM alerts WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	err := r.db.GetDB().SelectContext(ctx, &alerts, query, userID, limit)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to list alerts", err)
	}
	return alerts, nil
}
