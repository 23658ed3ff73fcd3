package domain

import (
	"time"

	"github.com/uptrace/bun"
)

// APIToken grants a bearer the right to run phone checks through at most
// one bound instance, with a request quota.
type APIToken struct {
	bun.BaseModel `bun:"table:api_tokens,alias:at"`

	ID            int64      `bun:"id,pk,autoincrement" json:"id"`
	UserID        UserID     `bun:"user_id,notnull" json:"user_id"`
	InstanceID    InstanceID `bun:"whatsapp_instance_id,nullzero" json:"whatsapp_instance_id,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"token"`
	Name          string     `bun:"name,notnull" json:"name"`
	RequestsLimit int        `bun:"requests_limit,default:1000" json:"requests_limit"`
	RequestsUsed  int        `bun:"requests_used,default:0" json:"requests_used"`
	Active        bool       `bun:"active,default:true" json:"active"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
	ExpiresAt     *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
}

// IsExpired reports whether the token has passed its expiry, if any.
func (t *APIToken) IsExpired() bool {
	return t.ExpiresAt != nil && time.Now().After(*t.ExpiresAt)
}

// QuotaReached reports whether the request ceiling has been hit. Checked
// before incrementing usage, so requests_used never exceeds requests_limit.
func (t *APIToken) QuotaReached() bool {
	return t.RequestsUsed >= t.RequestsLimit
}

// HasInstance reports whether the token is bound to an instance. A token
// with no bound instance cannot perform checks.
func (t *APIToken) HasInstance() bool {
	return t.InstanceID > 0
}
