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

// userRepository implements domain.UserRepository on bun.
type userRepository struct {
	db *bun.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *bun.DB) domain.UserRepository {
	return &userRepository{db: db}
}

// Create stores a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	exists, err := r.db.NewSelect().
		Model((*domain.User)(nil)).
		Where("username = ?", user.Username).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check user existence: %w", err)
	}
	if exists {
		return domain.NewAlreadyExistsError("User", "username", user.Username)
	}

	if _, err := r.db.NewInsert().Model(user).Exec(ctx); err != nil {
		log.Error().Err(err).Str("username", user.Username).Msg("Failed to create user")
		return fmt.Errorf("failed to create user: %w", err)
	}

	log.Info().Str("username", user.Username).Str("role", string(user.Role)).Msg("User created")
	return nil
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	user := new(domain.User)
	err := r.db.NewSelect().
		Model(user).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("User", id.String())
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetByUsername retrieves a user by username.
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	user := new(domain.User)
	err := r.db.NewSelect().
		Model(user).
		Where("username = ?", username).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("User", username)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// GetAll retrieves all users.
func (r *userRepository) GetAll(ctx context.Context) ([]*domain.User, error) {
	var users []*domain.User
	err := r.db.NewSelect().
		Model(&users).
		Order("created_at ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}

	return users, nil
}

// UpdatePassword replaces the stored password hash.
func (r *userRepository) UpdatePassword(ctx context.Context, id domain.UserID, hash string) error {
	result, err := r.db.NewUpdate().
		Model((*domain.User)(nil)).
		Set("password = ?", hash).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.NewNotFoundError("User", id.String())
	}

	return nil
}

// Delete removes a user by ID.
func (r *userRepository) Delete(ctx context.Context, id domain.UserID) error {
	result, err := r.db.NewDelete().
		Model((*domain.User)(nil)).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.NewNotFoundError("User", id.String())
	}

	log.Info().Str("user_id", id.String()).Msg("User deleted")
	return nil
}
