package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
)

// instanceRepository implements domain.InstanceRepository on bun.
type instanceRepository struct {
	db *bun.DB
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *bun.DB) domain.InstanceRepository {
	return &instanceRepository{db: db}
}

// Create stores a new instance row and fills in its generated ID.
func (r *instanceRepository) Create(ctx context.Context, inst *domain.Instance) error {
	if _, err := r.db.NewInsert().Model(inst).Exec(ctx); err != nil {
		log.Error().Err(err).Str("name", inst.Name).Msg("Failed to create instance")
		return fmt.Errorf("failed to create instance: %w", err)
	}

	log.Info().
		Str("instance_id", inst.ID.String()).
		Str("name", inst.Name).
		Msg("Instance created")
	return nil
}

// GetByID retrieves an instance by its ID.
func (r *instanceRepository) GetByID(ctx context.Context, id domain.InstanceID) (*domain.Instance, error) {
	inst := new(domain.Instance)
	err := r.db.NewSelect().
		Model(inst).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInstanceNotFound(id)
		}
		log.Error().Err(err).Str("instance_id", id.String()).Msg("Failed to get instance by ID")
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return inst, nil
}

// GetByUser retrieves all instances belonging to an owner, newest first.
func (r *instanceRepository) GetByUser(ctx context.Context, owner domain.UserID) ([]*domain.Instance, error) {
	var instances []*domain.Instance
	err := r.db.NewSelect().
		Model(&instances).
		Where("user_id = ?", owner).
		Order("created_at DESC").
		Scan(ctx)

	if err != nil {
		log.Error().Err(err).Str("user_id", owner.String()).Msg("Failed to get instances by user")
		return nil, fmt.Errorf("failed to get instances: %w", err)
	}

	return instances, nil
}

// GetAll retrieves every instance row.
func (r *instanceRepository) GetAll(ctx context.Context) ([]*domain.Instance, error) {
	var instances []*domain.Instance
	err := r.db.NewSelect().
		Model(&instances).
		Order("created_at DESC").
		Scan(ctx)

	if err != nil {
		log.Error().Err(err).Msg("Failed to get all instances")
		return nil, fmt.Errorf("failed to get instances: %w", err)
	}

	return instances, nil
}

// UpdateStatus updates the cached status column of an instance.
func (r *instanceRepository) UpdateStatus(ctx context.Context, id domain.InstanceID, status domain.Status) error {
	result, err := r.db.NewUpdate().
		Model((*domain.Instance)(nil)).
		Set("status = ?", string(status)).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		log.Error().Err(err).Str("instance_id", id.String()).Msg("Failed to update instance status")
		return fmt.Errorf("failed to update instance status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrInstanceNotFound(id)
	}

	log.Debug().
		Str("instance_id", id.String()).
		Str("status", string(status)).
		Msg("Instance status updated")
	return nil
}

// Delete removes an instance row by its ID.
func (r *instanceRepository) Delete(ctx context.Context, id domain.InstanceID) error {
	result, err := r.db.NewDelete().
		Model((*domain.Instance)(nil)).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		log.Error().Err(err).Str("instance_id", id.String()).Msg("Failed to delete instance")
		return fmt.Errorf("failed to delete instance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrInstanceNotFound(id)
	}

	log.Info().Str("instance_id", id.String()).Msg("Instance deleted")
	return nil
}

// SaveSessionBackup stores the credential blob on the instance row.
func (r *instanceRepository) SaveSessionBackup(ctx context.Context, id domain.InstanceID, data []byte, at time.Time) error {
	result, err := r.db.NewUpdate().
		Model((*domain.Instance)(nil)).
		Set("session_data = ?", data).
		Set("session_backup_at = ?", at).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		log.Error().Err(err).Str("instance_id", id.String()).Msg("Failed to save session backup")
		return fmt.Errorf("failed to save session backup: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrInstanceNotFound(id)
	}

	log.Info().
		Str("instance_id", id.String()).
		Int("bytes", len(data)).
		Msg("Session backup saved")
	return nil
}

// GetSessionBackup returns the stored credential blob, or nil when none
// exists.
func (r *instanceRepository) GetSessionBackup(ctx context.Context, id domain.InstanceID) ([]byte, error) {
	inst := new(domain.Instance)
	err := r.db.NewSelect().
		Model(inst).
		Column("session_data").
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInstanceNotFound(id)
		}
		log.Error().Err(err).Str("instance_id", id.String()).Msg("Failed to get session backup")
		return nil, fmt.Errorf("failed to get session backup: %w", err)
	}

	return inst.SessionData, nil
}
