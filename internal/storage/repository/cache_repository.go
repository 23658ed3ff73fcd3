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

// cacheRepository implements domain.CacheRepository on bun.
type cacheRepository struct {
	db *bun.DB
}

// NewCacheRepository creates a new phone cache repository.
func NewCacheRepository(db *bun.DB) domain.CacheRepository {
	return &cacheRepository{db: db}
}

// GetValid returns the non-expired entry for the phone, or nil on miss.
// Expired rows are filtered here, so callers never see stale results even
// before the sweep job physically deletes them.
func (r *cacheRepository) GetValid(ctx context.Context, phone string) (*domain.PhoneCache, error) {
	entry := new(domain.PhoneCache)
	err := r.db.NewSelect().
		Model(entry).
		Where("phone_number = ?", phone).
		Where("expires_at > ?", time.Now()).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		log.Error().Err(err).Str("phone", phone).Msg("Failed to get cache entry")
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	return entry, nil
}

// Upsert inserts or refreshes the entry keyed by phone number. Concurrent
// upserts for the same phone are last-write-wins; both writers carried a
// fresh upstream result so either outcome is correct.
func (r *cacheRepository) Upsert(ctx context.Context, entry *domain.PhoneCache) error {
	_, err := r.db.NewInsert().
		Model(entry).
		On("CONFLICT (phone_number) DO UPDATE").
		Set("is_valid = EXCLUDED.is_valid").
		Set("whatsapp_jid = EXCLUDED.whatsapp_jid").
		Set("last_checked = EXCLUDED.last_checked").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)

	if err != nil {
		log.Error().Err(err).Str("phone", entry.PhoneNumber).Msg("Failed to upsert cache entry")
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}

	return nil
}

// DeleteExpired physically removes expired rows and returns the count.
func (r *cacheRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.NewDelete().
		Model((*domain.PhoneCache)(nil)).
		Where("expires_at < ?", time.Now()).
		Exec(ctx)

	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// CountValid counts the non-expired entries.
func (r *cacheRepository) CountValid(ctx context.Context) (int64, error) {
	count, err := r.db.NewSelect().
		Model((*domain.PhoneCache)(nil)).
		Where("expires_at > ?", time.Now()).
		Count(ctx)

	if err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}

	return int64(count), nil
}
