// FilePath: internal/models/models.session.go
package models

import "time"

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// IsTerminal reports whether no further transition is defined out of
// the status except an explicit reset.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// IsOpen reports whether the session still owns its configuration's
// session reference.
func (s SessionStatus) IsOpen() bool {
	return s == SessionActive || s == SessionPaused
}

// StreamingSession is one replay of one dataset kind for one
// configuration. lastRowSent is the watermark between delivered and
// not-yet-due rows; it never exceeds TotalRows.
type StreamingSession struct {
	ID       string        `json:"id" db:"id"`
	ConfigID string        `json:"config_id" db:"config_id"`
	Kind     DeviceKind    `json:"kind" db:"kind"`
	Status   SessionStatus `json:"status" db:"status"`

	TotalRows    int `json:"total_rows" db:"total_rows"`
	LastRowSent  int `json:"last_row_sent" db:"last_row_sent"`
	RowsStreamed int `json:"rows_streamed" db:"rows_streamed"`

	StartedAt            time.Time  `json:"started_at" db:"started_at"`
	PausedAt             *time.Time `json:"paused_at,omitempty" db:"paused_at"`
	TotalPausedMs        int64      `json:"total_paused_ms" db:"total_paused_ms"`
	ExpectedCompletionAt *time.Time `json:"expected_completion_at,omitempty" db:"expected_completion_at"`
	LastDataSentAt       *time.Time `json:"last_data_sent_at,omitempty" db:"last_data_sent_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	ErrorCount        int        `json:"error_count" db:"error_count"`
	ConsecutiveErrors int        `json:"consecutive_errors" db:"consecutive_errors"`
	LastErrorAt       *time.Time `json:"last_error_at,omitempty" db:"last_error_at"`
	LastErrorMessage  string     `json:"last_error_message,omitempty" db:"last_error_message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SessionProgress is the derived progress report for one session.
type SessionProgress struct {
	SessionID             string        `json:"session_id"`
	Status                SessionStatus `json:"status"`
	Percentage            float64       `json:"percentage"`
	RowsSent              int           `json:"rows_sent"`
	RowsRemaining         int           `json:"rows_remaining"`
	TimeRemainingMs       int64         `json:"time_remaining_ms"`
	ProjectedCompletionAt *time.Time    `json:"projected_completion_at,omitempty"`
}
