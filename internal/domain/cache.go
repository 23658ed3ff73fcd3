package domain

import (
	"time"

	"github.com/uptrace/bun"
)

// PhoneCache memoizes the existence result for a normalized phone number.
// Entries are unique per phone number; expired rows are invisible to lookups
// regardless of when they are physically deleted.
type PhoneCache struct {
	bun.BaseModel `bun:"table:phone_cache,alias:pc"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	PhoneNumber string    `bun:"phone_number,notnull,unique" json:"phone_number"`
	IsValid     bool      `bun:"is_valid,notnull" json:"is_valid"`
	WhatsAppJID string    `bun:"whatsapp_jid" json:"whatsapp_jid"`
	LastChecked time.Time `bun:"last_checked,nullzero,notnull,default:current_timestamp" json:"last_checked"`
	ExpiresAt   time.Time `bun:"expires_at,notnull" json:"expires_at"`
}

// IsExpired reports whether the entry has passed its expiry.
func (c *PhoneCache) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// VerificationLog is one audit row per check, cached or live.
type VerificationLog struct {
	bun.BaseModel `bun:"table:verification_logs,alias:vl"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	TokenID     int64     `bun:"token_id,nullzero" json:"token_id,omitempty"`
	UserID      UserID    `bun:"user_id,nullzero" json:"user_id,omitempty"`
	PhoneNumber string    `bun:"phone_number,notnull" json:"phone_number"`
	IsValid     bool      `bun:"is_valid" json:"is_valid"`
	IPAddress   string    `bun:"ip_address" json:"ip_address"`
	UserAgent   string    `bun:"user_agent" json:"user_agent"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// VerificationStats aggregates audit-log counters for the stats endpoint.
type VerificationStats struct {
	TotalVerifications int64 `json:"total_verifications"`
	ValidNumbers       int64 `json:"valid_numbers"`
	InvalidNumbers     int64 `json:"invalid_numbers"`
	CacheSize          int64 `json:"cache_size"`
	ActiveTokens       int64 `json:"active_tokens"`
}
