// FilePath: internal/models/models.event.go
package models

import "time"

// EventKind is the closed set of audit-trail event categories. Keeping
// this a typed constant set means a typo cannot create an unqueryable
// category.
type EventKind string

const (
	EventSessionStarted   EventKind = "session_started"
	EventSessionPaused    EventKind = "session_paused"
	EventSessionResumed   EventKind = "session_resumed"
	EventSessionCompleted EventKind = "session_completed"
	EventSessionFailed    EventKind = "session_failed"
	EventDataSent         EventKind = "data_sent"
	EventDataBatchSent    EventKind = "data_batch_sent"
	EventErrorOccurred    EventKind = "error_occurred"
	EventDatasetReset     EventKind = "dataset_reset"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventSessionStarted, EventSessionPaused, EventSessionResumed,
		EventSessionCompleted, EventSessionFailed, EventDataSent,
		EventDataBatchSent, EventErrorOccurred, EventDatasetReset:
		return true
	}
	return false
}

// StreamingEvent is one immutable audit record. Rows are only ever
// deleted in bulk when a session's data is discarded on reset.
type StreamingEvent struct {
	ID           string    `json:"id" db:"id"`
	SessionID    string    `json:"session_id" db:"session_id"`
	Kind         EventKind `json:"kind" db:"kind"`
	Details      JSON      `json:"details,omitempty" db:"details"`
	RowIndex     *int      `json:"row_index,omitempty" db:"row_index"`
	RowTimestamp *string   `json:"row_timestamp,omitempty" db:"row_timestamp"`
	Values       JSON      `json:"values,omitempty" db:"sensor_values"`
	CronRunID    string    `json:"cron_run_id,omitempty" db:"cron_run_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// EventFilter narrows event-log queries.
type EventFilter struct {
	Limit  int         `schema:"limit"`
	Offset int         `schema:"offset"`
	Kinds  []EventKind `schema:"kind"`
	From   *time.Time  `schema:"-"`
	To     *time.Time  `schema:"-"`
}
