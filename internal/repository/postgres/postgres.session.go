// FilePath: internal/repository/postgres/postgres.session.go
package postgres

import (
	"context"
	"database/sql"
	"time"

	nuts "github.com/vaudience/go-nuts"

	"github.com/verdantio/aquahub/internal/database"
	"github.com/verdantio/aquahub/internal/errors"
	"github.com/verdantio/aquahub/internal/models"
	"github.com/verdantio/aquahub/internal/repository"
)

type SessionRepo struct {
	PostgresBaseRepo
}

func NewSessionRepository(db database.DB) *SessionRepo {
	repo := &PostgresBaseRepo{db: db}
	return &SessionRepo{PostgresBaseRepo: *repo}
}

func (r *SessionRepo) Create(ctx context.Context, session *models.StreamingSession) error {
	query := `
		INSERT INTO streaming_sessions (
			id, config_id, kind, status, total_rows, last_row_sent,
			rows_streamed, started_at, paused_at, total_paused_ms,
			expected_completion_at, last_data_sent_at, completed_at,
			error_count, consecutive_errors, last_error_at,
			last_error_message, created_at, updated_at
		) VALUES (
			:id, :config_id, :kind, :status, :total_rows, :last_row_sent,
			:rows_streamed, :started_at, :paused_at, :total_paused_ms,
			:expected_completion_at, :last_data_sent_at, :completed_at,
			:error_count, :consecutive_errors, :last_error_at,
			:last_error_message, :created_at, :updated_at
		)`

	_, err := r.db.GetDB().NamedExecContext(ctx, query, session)
	if err != nil {
		return errors.NewDatabaseError("failed to create session", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*models.StreamingSession, error) {
	session := &models.StreamingSession{}
	query := `SELECT * FROM streaming_sessions WHERE id = $1`

	err := r.db.GetDB().GetContext(ctx, session, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("session not found", err)
		}
		return nil, errors.NewDatabaseError("failed to get session", err)
	}
	return session, nil
}

func (r *SessionRepo) Update(ctx context.Context, session *models.StreamingSession) error {
	query := `
		UPDATE streaming_sessions SET
			status = :status,
			total_rows = :total_rows,
			last_row_sent = :last_row_sent,
			rows_streamed = :rows_streamed,
			paused_at = :paused_at,
			total_paused_ms = :total_paused_ms,
			expected_completion_at = :expected_completion_at,
			last_data_sent_at = :last_data_sent_at,
			completed_at = :completed_at,
			error_count = :error_count,
			consecutive_errors = :consecutive_errors,
			last_error_at = :last_error_at,
			last_error_message = :last_error_message,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.GetDB().NamedExecContext(ctx, query, session)
	if err != nil {
		return errors.NewDatabaseError("failed to update session", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return errors.NewNotFoundError("session not found", nil)
	}

	return nil
}

// AdvanceProgress is the single writer path for the session watermark.
// The WHERE clause on last_row_sent is the compare-and-swap: two
// concurrent deliveries cannot both advance from the same stale value.
func (r *SessionRepo) AdvanceProgress(ctx context.Context, id string, fromRow, toRow, rowsDelta int, sentAt time.Time) error {
	query := `
		UPDATE streaming_sessions SET
			last_row_sent = $1,
			rows_streamed = rows_streamed + $2,
			last_data_sent_at = $3,
			consecutive_errors = 0,
			updated_at = $3
		WHERE id = $4 AND last_row_sent = $5 AND status = $6`

	result, err := r.db.GetDB().ExecContext(ctx, query,
		toRow, rowsDelta, sentAt, id, fromRow, models.SessionActive)
	if err != nil {
		return errors.NewDatabaseError("failed to advance session progress", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return repository.ErrStaleWatermark
	}
	return nil
}

// RecordError increments both error counters and, when the consecutive
// count reaches threshold, flips the session to failed inside the same
// statement. The RETURNING clause tells the caller whether this call
// crossed the threshold.
func (r *SessionRepo) RecordError(ctx context.Context, id, message string, at time.Time, threshold int) (int, bool, error) {
	query := `
		UPDATE streaming_sessions SET
			error_count = error_count + 1,
			consecutive_errors = consecutive_errors + 1,
			last_error_at = $1,
			last_error_message = $2,
			status = CASE
				WHEN consecutive_errors + 1 >= $3 AND status IN ($4, $5) THEN $6
				ELSE status
			END,
			completed_at = CASE
				WHEN consecutive_errors + 1 >= $3 AND status IN ($4, $5) THEN $1
				ELSE completed_at
			END,
			updated_at = $1
		WHERE id = $7
		RETURNING consecutive_errors, status`

	var consecutive int
	var status models.SessionStatus
	err := r.db.GetDB().QueryRowxContext(ctx, query,
		at, message, threshold,
		models.SessionActive, models.SessionPaused, models.SessionFailed,
		id,
	).Scan(&consecutive, &status)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, errors.NewNotFoundError("session not found", err)
		}
		return 0, false, errors.NewDatabaseError("failed to record session error", err)
	}

	forcedFail := status == models.SessionFailed && consecutive >= threshold
	if forcedFail {
		nuts.L.Warnf("[SessionRepo] Session %s forced to failed after %d consecutive errors", id, consecutive)
	}
	return consecutive, forcedFail, nil
}

func (r *SessionRepo) ListOpenByConfig(ctx context.Context, configID string) ([]*models.StreamingSession, error) {
	sessions := []*models.StreamingSession{}
	query := `
		SELECT * FROM streaming_sessions
		WHERE config_id = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC`

	err := r.db.GetDB().SelectContext(ctx, &sessions, query, configID,
		models.SessionActive, models.SessionPaused)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to list open sessions", err)
	}
	return sessions, nil
}
