package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
)

// tokenRepository implements domain.TokenRepository on bun.
type tokenRepository struct {
	db *bun.DB
}

// NewTokenRepository creates a new API token repository.
func NewTokenRepository(db *bun.DB) domain.TokenRepository {
	return &tokenRepository{db: db}
}

// Create stores a new API token.
func (r *tokenRepository) Create(ctx context.Context, token *domain.APIToken) error {
	if _, err := r.db.NewInsert().Model(token).Exec(ctx); err != nil {
		log.Error().Err(err).Str("name", token.Name).Msg("Failed to create API token")
		return fmt.Errorf("failed to create API token: %w", err)
	}

	log.Info().
		Int64("token_id", token.ID).
		Str("name", token.Name).
		Int("requests_limit", token.RequestsLimit).
		Msg("API token created")
	return nil
}

// GetBySecret retrieves an active token by its opaque secret.
func (r *tokenRepository) GetBySecret(ctx context.Context, secret string) (*domain.APIToken, error) {
	token := new(domain.APIToken)
	err := r.db.NewSelect().
		Model(token).
		Where("token = ?", secret).
		Where("active = ?", true).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("APIToken", "<redacted>")
		}
		return nil, fmt.Errorf("failed to get API token: %w", err)
	}

	return token, nil
}

// GetByUser retrieves all tokens belonging to an owner, newest first.
func (r *tokenRepository) GetByUser(ctx context.Context, owner domain.UserID) ([]*domain.APIToken, error) {
	var tokens []*domain.APIToken
	err := r.db.NewSelect().
		Model(&tokens).
		Where("user_id = ?", owner).
		Order("created_at DESC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get API tokens: %w", err)
	}

	return tokens, nil
}

// IncrementUsage bumps requests_used by one. Quota is checked by the caller
// before the request runs, so this never pushes usage past the limit on the
// request that was admitted.
func (r *tokenRepository) IncrementUsage(ctx context.Context, id int64) error {
	_, err := r.db.NewUpdate().
		Model((*domain.APIToken)(nil)).
		Set("requests_used = requests_used + 1").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		log.Error().Err(err).Int64("token_id", id).Msg("Failed to increment token usage")
		return fmt.Errorf("failed to increment token usage: %w", err)
	}

	return nil
}

// Deactivate flips the token inactive.
func (r *tokenRepository) Deactivate(ctx context.Context, id int64) error {
	result, err := r.db.NewUpdate().
		Model((*domain.APIToken)(nil)).
		Set("active = ?", false).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to deactivate API token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.NewNotFoundError("APIToken", strconv.FormatInt(id, 10))
	}

	log.Info().Int64("token_id", id).Msg("API token deactivated")
	return nil
}

// CountActive counts the owner's active tokens.
func (r *tokenRepository) CountActive(ctx context.Context, owner domain.UserID) (int64, error) {
	count, err := r.db.NewSelect().
		Model((*domain.APIToken)(nil)).
		Where("user_id = ?", owner).
		Where("active = ?", true).
		Count(ctx)

	if err != nil {
		return 0, fmt.Errorf("failed to count API tokens: %w", err)
	}

	return int64(count), nil
}
