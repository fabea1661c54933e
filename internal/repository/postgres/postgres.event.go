// FilePath: internal/repository/postgres/postgres.event.go
package postgres

import (
	"context"
	"strconv"
	"time"

	"github.com/lib/pq"

	nuts "github.com/vaudience/go-nuts"

	"github.com/verdantio/aquahub/internal/database"
	"github.com/verdantio/aquahub/internal/errors"
	"github.com/verdantio/aquahub/internal/models"
)

// EventRepo is the append-only audit trail. There is no update path;
// rows are only bulk-deleted when a session's data is discarded on
// reset.
type EventRepo struct {
	PostgresBaseRepo
}

func NewEventRepository(db database.DB) *EventRepo {
	repo := &PostgresBaseRepo{db: db}
	return &EventRepo{PostgresBaseRepo: *repo}
}

func (r *EventRepo) Append(ctx context.Context, event *models.StreamingEvent) error {
	if event.ID == "" {
		event.ID = nuts.NID("evt", 12)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO streaming_events (
			id, session_id, kind, details, row_index, row_timestamp,
			sensor_values, cron_run_id, created_at
		) VALUES (
			:id, :session_id, :kind, :details, :row_index, :row_timestamp,
			:sensor_values, :cron_run_id, :created_at
		)`

	_, err := r.db.GetDB().NamedExecContext(ctx, query, event)
	if err != nil {
		return errors.NewDatabaseError("failed to append event", err)
	}
	return nil
}

func (r *EventRepo) List(ctx context.Context, sessionID string, filter models.EventFilter) (int64, []*models.StreamingEvent, error) {
	query := `
		SELECT COUNT(*) OVER() AS count, *
		FROM streaming_events
		WHERE session_id = $1`

	args := []interface{}{sessionID}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, 0, len(filter.Kinds))
		for _, k := range filter.Kinds {
			kinds = append(kinds, string(k))
		}
		args = append(args, pq.Array(kinds))
		query += ` AND kind = ANY($2)`
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += ` AND created_at <= $` + strconv.Itoa(len(args))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))
	args = append(args, offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.db.GetDB().QueryxContext(ctx, query, args...)
	if err != nil {
		return 0, nil, errors.NewDatabaseError("failed to list events", err)
	}
	defer rows.Close()

	var total int64
	events := []*models.StreamingEvent{}
	for rows.Next() {
		var event models.StreamingEvent
		dest := struct {
			Count int64 `db:"count"`
			*models.StreamingEvent
		}{StreamingEvent: &event}
		if err := rows.StructScan(&dest); err != nil {
			return 0, nil, errors.NewDatabaseError("failed to scan event", err)
		}
		total = dest.Count
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, errors.NewDatabaseError("failed to iterate events", err)
	}

	return total, events, nil
}

func (r *EventRepo) CountByKind(ctx context.Context, sessionID string) (map[models.EventKind]int64, error) {
	query := `
		SELECT kind, COUNT(*) AS count
		FROM streaming_events
		WHERE session_id = $1
		GROUP BY kind`

	rows, err := r.db.GetDB().QueryxContext(ctx, query, sessionID)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to count events", err)
	}
	defer rows.Close()

	counts := make(map[models.EventKind]int64)
	for rows.Next() {
		var kind models.EventKind
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, errors.NewDatabaseError("failed to scan event count", err)
		}
		counts[kind] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("failed to iterate event counts", err)
	}

	return counts, nil
}

func (r *EventRepo) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	query := `DELETE FROM streaming_events WHERE session_id = $1`

	result, err := r.db.GetDB().ExecContext(ctx, query, sessionID)
	if err != nil {
		return 0, errors.NewDatabaseError("failed to delete events", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewDatabaseError("failed to get rows affected", err)
	}

	nuts.L.Infof("[EventRepo] Deleted %d events for session %s", rows, sessionID)
	return rows, nil
}
