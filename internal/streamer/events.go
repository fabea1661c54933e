// FilePath: internal/streamer/events.go
package streamer

import (
	"context"

	nuts "github.com/vaudience/go-nuts"

	"github.com/verdantio/aquahub/internal/models"
)

// logEvent appends an audit record. Event-log failures are logged and
// swallowed: the audit trail must never block delivery or a state
// transition.
func (s *Service) logEvent(ctx context.Context, sessionID, runID string, kind models.EventKind, details models.JSON) {
	event := &models.StreamingEvent{
		SessionID: sessionID,
		Kind:      kind,
		Details:   details,
		CronRunID: runID,
	}
	if err := s.Events.Append(ctx, event); err != nil {
		nuts.L.Warnf("[Streamer] Failed to log %s event for session %s: %v", kind, sessionID, err)
	}
}

// logBatchEvent appends a data_batch_sent record carrying the batch's
// index range and the last row's native timestamp.
func (s *Service) logBatchEvent(ctx context.Context, sessionID, runID string, due *DueReadings, durationMs int64) {
	if len(due.Rows) == 0 {
		return
	}
	last := due.Rows[len(due.Rows)-1]
	lastIndex := last.Index
	rawTS := last.RawTimestamp

	values := models.JSON{}
	for k, v := range last.Values.Fields() {
		values[k] = v
	}

	event := &models.StreamingEvent{
		SessionID:    sessionID,
		Kind:         models.EventDataBatchSent,
		RowIndex:     &lastIndex,
		RowTimestamp: &rawTS,
		Values:       values,
		CronRunID:    runID,
		Details: models.JSON{
			"batch_size":  len(due.Rows),
			"from_index":  due.FromIndex,
			"to_index":    due.ToIndex,
			"duration_ms": durationMs,
		},
	}
	if err := s.Events.Append(ctx, event); err != nil {
		nuts.L.Warnf("[Streamer] Failed to log batch event for session %s: %v", sessionID, err)
	}
}

// GetEvents returns a session's audit trail, newest first, with the
// total match count for pagination.
func (s *Service) GetEvents(ctx context.Context, sessionID string, filter models.EventFilter) (int64, []*models.StreamingEvent, error) {
	return s.Events.List(ctx, sessionID, filter)
}

// GetEventCounts returns a kind -> count histogram for one session.
func (s *Service) GetEventCounts(ctx context.Context, sessionID string) (map[models.EventKind]int64, error) {
	return s.Events.CountByKind(ctx, sessionID)
}
