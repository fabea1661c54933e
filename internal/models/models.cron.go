// FilePath: internal/models/models.cron.go
package models

import (
	"time"

	"github.com/lib/pq"
)

type CronRunStatus string

const (
	CronRunStarted   CronRunStatus = "started"
	CronRunCompleted CronRunStatus = "completed"
	CronRunFailed    CronRunStatus = "failed"
)

// CronExecution is one row per external-trigger invocation. Created
// with status started at the top of a tick, finalized exactly once at
// the end, never mutated afterwards.
type CronExecution struct {
	ID                string         `json:"id" db:"id"`
	RunID             string         `json:"run_id" db:"run_id"`
	Status            CronRunStatus  `json:"status" db:"status"`
	TriggerSource     string         `json:"trigger_source" db:"trigger_source"`
	ConfigsProcessed  int            `json:"configs_processed" db:"configs_processed"`
	SessionsProcessed int            `json:"sessions_processed" db:"sessions_processed"`
	ReadingsSent      int            `json:"readings_sent" db:"readings_sent"`
	Errors            pq.StringArray `json:"errors,omitempty" db:"errors"`
	StartedAt         time.Time      `json:"started_at" db:"started_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	DurationMs        int64          `json:"duration_ms" db:"duration_ms"`
}
