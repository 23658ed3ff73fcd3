package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
)

// verificationLogRepository implements domain.VerificationLogRepository on
// bun.
type verificationLogRepository struct {
	db *bun.DB
}

// NewVerificationLogRepository creates a new verification log repository.
func NewVerificationLogRepository(db *bun.DB) domain.VerificationLogRepository {
	return &verificationLogRepository{db: db}
}

// Insert appends one audit row.
func (r *verificationLogRepository) Insert(ctx context.Context, entry *domain.VerificationLog) error {
	if _, err := r.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		log.Error().Err(err).Str("phone", entry.PhoneNumber).Msg("Failed to insert verification log")
		return fmt.Errorf("failed to insert verification log: %w", err)
	}
	return nil
}

// Stats aggregates verification counters, scoped to one owner when owner is
// non-nil (admins pass nil for the global view).
func (r *verificationLogRepository) Stats(ctx context.Context, owner *domain.UserID) (*domain.VerificationStats, error) {
	stats := &domain.VerificationStats{}

	base := func() *bun.SelectQuery {
		q := r.db.NewSelect().Model((*domain.VerificationLog)(nil))
		if owner != nil {
			q = q.Where("user_id = ?", *owner)
		}
		return q
	}

	total, err := base().Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count verifications: %w", err)
	}
	stats.TotalVerifications = int64(total)

	valid, err := base().Where("is_valid = ?", true).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count valid verifications: %w", err)
	}
	stats.ValidNumbers = int64(valid)

	invalid, err := base().Where("is_valid = ?", false).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count invalid verifications: %w", err)
	}
	stats.InvalidNumbers = int64(invalid)

	return stats, nil
}
