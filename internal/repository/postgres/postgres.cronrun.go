// FilePath: internal/repository/postgres/postgres.cronrun.go
package postgres

import (
	"context"

	"github.com/verdantio/aquahub/internal/database"
	"github.com/verdantio/aquahub/internal/errors"
	"github.com/verdantio/aquahub/internal/models"
)

type CronRunRepo struct {
	PostgresBaseRepo
}

func NewCronRunRepository(db database.DB) *CronRunRepo {
	repo := &PostgresBaseRepo{db: db}
	return &CronRunRepo{PostgresBaseRepo: *repo}
}

func (r *CronRunRepo) Create(ctx context.Context, run *models.CronExecution) error {
	query := `
		INSERT INTO cron_executions (
			id, run_id, status, trigger_source, configs_processed,
			sessions_processed, readings_sent, errors, started_at,
			completed_at, duration_ms
		) VALUES (
			:id, :run_id, :status, :trigger_source, :configs_processed,
			:sessions_processed, :readings_sent, :errors, :started_at,
			:completed_at, :duration_ms
		)`

	_, err := r.db.GetDB().NamedExecContext(ctx, query, run)
	if err != nil {
		return errors.NewDatabaseError("failed to create cron execution", err)
	}
	return nil
}

// Finalize writes the run outcome exactly once; a run already
// finalized stays untouched.
func (r *CronRunRepo) Finalize(ctx context.Context, run *models.CronExecution) error {
	query := `
		UPDATE cron_executions SET
			status = :status,
			configs_processed = :configs_processed,
			sessions_processed = :sessions_processed,
			readings_sent = :readings_sent,
			errors = :errors,
			completed_at = :completed_at,
			duration_ms = :duration_ms
		WHERE id = :id AND status = 'started'`

	result, err := r.db.GetDB().NamedExecContext(ctx, query, run)
	if err != nil {
		return errors.NewDatabaseError("failed to finalize cron execution", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}
	if rows == 0 {
		return errors.NewNotFoundError("cron execution not found or already finalized", nil)
	}
	return nil
}

func (r *CronRunRepo) ListRecent(ctx context.Context, limit int) ([]*models.CronExecution, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	runs := []*models.CronExecution{}
	query := `SELECT * FROM cron_executions ORDER BY started_at DESC LIMIT $1`

	err := r.db.GetDB().SelectContext(ctx, &runs, query, limit)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to list cron executions", err)
	}
	return runs, nil
}
