package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// InstanceID identifies one WhatsApp instance.
type InstanceID int64

// String returns the string representation of the InstanceID.
func (id InstanceID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseInstanceID parses a string into an InstanceID.
func ParseInstanceID(s string) (InstanceID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, NewValidationError(fmt.Sprintf("invalid instance ID: %q", s))
	}
	return InstanceID(n), nil
}

// UserID identifies an admin-panel user.
type UserID int64

// String returns the string representation of the UserID.
func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Status represents the instance connection status as persisted. The live
// session handle is authoritative; this column is a cache of it.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusConnected:
		return true
	default:
		return false
	}
}

// Instance represents one WhatsApp-protocol identity owned by a user.
type Instance struct {
	bun.BaseModel `bun:"table:whatsapp_instances,alias:wi"`

	ID              InstanceID `bun:"id,pk,autoincrement" json:"id"`
	UserID          UserID     `bun:"user_id,notnull" json:"user_id"`
	Name            string     `bun:"name,notnull" json:"name"`
	Status          Status     `bun:"status,default:'disconnected'" json:"status"`
	AuthPath        string     `bun:"auth_path,notnull" json:"auth_path"`
	SessionData     []byte     `bun:"session_data" json:"-"`
	SessionBackupAt *time.Time `bun:"session_backup_at,nullzero" json:"session_backup_at,omitempty"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// NewInstance creates a new disconnected instance for the given owner. The
// auth path must be unique per (owner, creation time); see NewAuthPath.
func NewInstance(owner UserID, name, authPath string) *Instance {
	now := time.Now()
	return &Instance{
		UserID:    owner,
		Name:      strings.TrimSpace(name),
		Status:    StatusDisconnected,
		AuthPath:  authPath,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewAuthPath derives a fresh credential locator for an owner. Uniqueness
// comes from the millisecond timestamp; two creations by the same owner in
// the same millisecond are not a supported workload.
func NewAuthPath(owner UserID) string {
	return fmt.Sprintf("user_%d_%d", owner, time.Now().UnixMilli())
}

// HasBackup reports whether a credential backup blob is stored on the row.
func (i *Instance) HasBackup() bool {
	return len(i.SessionData) > 0
}
