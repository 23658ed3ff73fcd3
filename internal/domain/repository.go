package domain

import (
	"context"
	"time"
)

// InstanceRepository persists whatsapp_instances rows. The stored status is
// a cache of the live handle's status, never the other way around.
type InstanceRepository interface {
	Create(ctx context.Context, inst *Instance) error
	GetByID(ctx context.Context, id InstanceID) (*Instance, error)
	GetByUser(ctx context.Context, owner UserID) ([]*Instance, error)
	GetAll(ctx context.Context) ([]*Instance, error)
	UpdateStatus(ctx context.Context, id InstanceID, status Status) error
	Delete(ctx context.Context, id InstanceID) error

	// SaveSessionBackup stores the credential blob on the recovery tier.
	SaveSessionBackup(ctx context.Context, id InstanceID, data []byte, at time.Time) error
	// GetSessionBackup returns the most recent credential blob, or nil when
	// no backup exists.
	GetSessionBackup(ctx context.Context, id InstanceID) ([]byte, error)
}

// UserRepository persists admin-panel users.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id UserID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetAll(ctx context.Context) ([]*User, error)
	UpdatePassword(ctx context.Context, id UserID, hash string) error
	Delete(ctx context.Context, id UserID) error
}

// TokenRepository persists API tokens.
type TokenRepository interface {
	Create(ctx context.Context, token *APIToken) error
	GetBySecret(ctx context.Context, secret string) (*APIToken, error)
	GetByUser(ctx context.Context, owner UserID) ([]*APIToken, error)
	IncrementUsage(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64) error
	CountActive(ctx context.Context, owner UserID) (int64, error)
}

// CacheRepository persists phone existence results.
type CacheRepository interface {
	// GetValid returns the non-expired entry for the phone, or nil on miss.
	GetValid(ctx context.Context, phone string) (*PhoneCache, error)
	// Upsert inserts or refreshes the entry keyed by phone number,
	// last-write-wins.
	Upsert(ctx context.Context, entry *PhoneCache) error
	// DeleteExpired physically removes expired rows and returns the count.
	DeleteExpired(ctx context.Context) (int64, error)
	CountValid(ctx context.Context) (int64, error)
}

// VerificationLogRepository persists the check audit trail.
type VerificationLogRepository interface {
	Insert(ctx context.Context, entry *VerificationLog) error
	Stats(ctx context.Context, owner *UserID) (*VerificationStats, error)
}
