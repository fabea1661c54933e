// FilePath: internal/models/models.health.go
package models

import "time"

type CronHealthStatus string

const (
	HealthHealthy  CronHealthStatus = "healthy"
	HealthDegraded CronHealthStatus = "degraded"
	HealthFailed   CronHealthStatus = "failed"
	HealthUnknown  CronHealthStatus = "unknown"
)

type SyncStatus string

const (
	SyncSynced    SyncStatus = "synced"
	SyncOutOfSync SyncStatus = "out_of_sync"
	SyncSyncing   SyncStatus = "syncing"
	SyncUnknown   SyncStatus = "unknown"
)

// HealthMetrics is the per-user rolling health record. One row per
// user, updated after every trigger run and every sync pass, never
// deleted.
type HealthMetrics struct {
	UserID                string           `json:"user_id" db:"user_id"`
	LastCronSuccessAt     *time.Time       `json:"last_cron_success_at,omitempty" db:"last_cron_success_at"`
	LastCronAttemptAt     *time.Time       `json:"last_cron_attempt_at,omitempty" db:"last_cron_attempt_at"`
	LastCronError         string           `json:"last_cron_error,omitempty" db:"last_cron_error"`
	CronStatus            CronHealthStatus `json:"cron_status" db:"cron_status"`
	ConsecutiveFailures   int              `json:"consecutive_failures" db:"consecutive_failures"`
	SyncStatus            SyncStatus       `json:"sync_status" db:"sync_status"`
	ActiveDevices         int              `json:"active_devices" db:"active_devices"`
	ActiveSessions        int              `json:"active_sessions" db:"active_sessions"`
	OrphanedSessions      int              `json:"orphaned_sessions" db:"orphaned_sessions"`
	AlertsEnabled         bool             `json:"alerts_enabled" db:"alerts_enabled"`
	AlertThresholdMinutes int              `json:"alert_threshold_minutes" db:"alert_threshold_minutes"`
	UpdatedAt             time.Time        `json:"updated_at" db:"updated_at"`
}

type AlertSeverity string

const (
	AlertHigh     AlertSeverity = "high"
	AlertCritical AlertSeverity = "critical"
)

type AlertKind string

const (
	AlertCronOverdue         AlertKind = "cron_overdue"
	AlertConsecutiveFailures AlertKind = "consecutive_failures"
)

// Alert is a raised operational alert. Deduplication is left to
// consumers; every overdue tick raises a fresh row.
type Alert struct {
	ID        string        `json:"id" db:"id"`
	UserID    string        `json:"user_id" db:"user_id"`
	Kind      AlertKind     `json:"kind" db:"kind"`
	Severity  AlertSeverity `json:"severity" db:"severity"`
	Message   string        `json:"message" db:"message"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// HealthCheck is the read-only snapshot returned to operators.
type HealthCheck struct {
	UserID                  string           `json:"user_id"`
	Status                  CronHealthStatus `json:"status"`
	CronStatus              CronHealthStatus `json:"cron_status"`
	SyncStatus              SyncStatus       `json:"sync_status"`
	MinutesSinceLastSuccess *int64           `json:"minutes_since_last_success,omitempty"`
	IsOverdue               bool             `json:"is_overdue"`
	ActiveDevices           int              `json:"active_devices"`
	ActiveSessions          int              `json:"active_sessions"`
	OrphanedSessions        int              `json:"orphaned_sessions"`
	Issues                  []string         `json:"issues"`
	CheckedAt               time.Time        `json:"checked_at"`
}

// SyncResult is the structured outcome of one reconciliation pass.
type SyncResult struct {
	Success           bool             `json:"success"`
	Timestamp         time.Time        `json:"timestamp"`
	SessionsCreated   int              `json:"sessions_created"`
	SessionsCleanedUp int              `json:"sessions_cleaned_up"`
	DevicesValidated  int              `json:"devices_validated"`
	ErrorsFixed       int              `json:"errors_fixed"`
	Issues            []string         `json:"issues"`
	HealthStatus      CronHealthStatus `json:"health_status"`
}
