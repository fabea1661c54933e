// FilePath: internal/repository/postgres/postgres.config.go
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/verdantio/aquahub/internal/database"
	"github.com/verdantio/aquahub/internal/errors"
	"github.com/verdantio/aquahub/internal/models"
)

type ConfigRepo struct {
	PostgresBaseRepo
}

func NewConfigRepository(db database.DB) *ConfigRepo {
	repo := &PostgresBaseRepo{db: db}
	return &ConfigRepo{PostgresBaseRepo: *repo}
}

func (r *ConfigRepo) Get(ctx context.Context, id string) (*models.VirtualDeviceConfig, error) {
	config := &models.VirtualDeviceConfig{}
	query := `SELECT * FROM virtual_device_configs WHERE id = $1`

	err := r.db.GetDB().GetContext(ctx, config, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("config not found", err)
		}
		return nil, errors.NewDatabaseError("failed to get config", err)
	}
	return config, nil
}

func (r *ConfigRepo) GetByUser(ctx context.Context, userID string) (*models.VirtualDeviceConfig, error) {
	config := &models.VirtualDeviceConfig{}
	query := `SELECT * FROM virtual_device_configs WHERE user_id = $1`

	err := r.db.GetDB().GetContext(ctx, config, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("config not found", err)
		}
		return nil, errors.NewDatabaseError("failed to get config", err)
	}
	return config, nil
}

func (r *ConfigRepo) ListEnabled(ctx context.Context) ([]*models.VirtualDeviceConfig, error) {
	configs := []*models.VirtualDeviceConfig{}
	query := `SELECT * FROM virtual_device_configs WHERE enabled = true ORDER BY created_at`

	err := r.db.GetDB().SelectContext(ctx, &configs, query)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to list enabled configs", err)
	}
	return configs, nil
}

// SetSessionRef atomically repoints the configuration's session
// reference for one kind. A nil sessionID clears the reference.
func (r *ConfigRepo) SetSessionRef(ctx context.Context, configID string, kind models.DeviceKind, sessionID *string) error {
	column := "plant_session_id"
	if kind == models.KindFish {
		column = "fish_session_id"
	}
	query := `UPDATE virtual_device_configs SET ` + column + ` = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.GetDB().ExecContext(ctx, query, sessionID, time.Now(), configID)
	if err != nil {
		return errors.NewDatabaseError("failed to set session reference", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}
	if rows == 0 {
		return errors.NewNotFoundError("config not found", nil)
	}
	return nil
}

// ClearDeviceRef nulls both the device and session reference for one
// kind, used when the backing device was deleted out-of-band.
func (r *ConfigRepo) ClearDeviceRef(ctx context.Context, configID string, kind models.DeviceKind) error {
	deviceCol, sessionCol := "plant_device_id", "plant_session_id"
	if kind == models.KindFish {
		deviceCol, sessionCol = "fish_device_id", "fish_session_id"
	}
	query := `UPDATE virtual_device_configs SET ` + deviceCol + ` = NULL, ` +
		sessionCol + ` = NULL, updated_at = $1 WHERE id = $2`

	result, err := r.db.GetDB().ExecContext(ctx, query, time.Now(), configID)
	if err != nil {
		return errors.NewDatabaseError("failed to clear device reference", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}
	if rows == 0 {
		return errors.NewNotFoundError("config not found", nil)
	}
	return nil
}
