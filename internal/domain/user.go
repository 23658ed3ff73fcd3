package domain

import (
	"time"

	"github.com/uptrace/bun"
)

// Role represents an admin-panel user role.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User represents an admin-panel user. The password column holds a bcrypt
// hash, never plaintext.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        UserID    `bun:"id,pk,autoincrement" json:"id"`
	Username  string    `bun:"username,notnull,unique" json:"username"`
	Password  string    `bun:"password,notnull" json:"-"`
	Role      Role      `bun:"role,default:'user'" json:"role"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
