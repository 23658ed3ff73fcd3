package verification

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
)

// Checker is the slice of a session handle the gateway needs.
type Checker interface {
	CheckNumber(ctx context.Context, phone string) (domain.NumberResult, error)
}

// ConnLookup resolves a token's bound instance to a live checker. The second
// return is false when no usable connection exists.
type ConnLookup func(id domain.InstanceID) (Checker, bool)

// TokenConsumer counts one answered check against a token's quota.
type TokenConsumer func(ctx context.Context, token *domain.APIToken) error

// Result is the envelope returned for one check.
type Result struct {
	PhoneNumber string    `json:"phone_number"`
	Exists      bool      `json:"exists"`
	WhatsAppJID string    `json:"whatsapp_jid,omitempty"`
	Cached      bool      `json:"cached"`
	ForcedCheck bool      `json:"forced_check,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
}

// Request carries the per-call audit metadata alongside the raw input. Force
// skips the cache read and always asks the live instance.
type Request struct {
	Phone     string
	Force     bool
	IPAddress string
	UserAgent string
}

// Service answers phone-existence checks: normalize, consult the cache, and
// only on a miss go through the token's bound instance.
type Service struct {
	cache    domain.CacheRepository
	logs     domain.VerificationLogRepository
	conns    ConnLookup
	consume  TokenConsumer
	cacheTTL time.Duration
}

// NewService creates the verification gateway. consume, when non-nil, is
// invoked once per answered check; requests that fail never reach it.
func NewService(cache domain.CacheRepository, logs domain.VerificationLogRepository, conns ConnLookup, consume TokenConsumer, cacheTTL time.Duration) *Service {
	return &Service{
		cache:    cache,
		logs:     logs,
		conns:    conns,
		consume:  consume,
		cacheTTL: cacheTTL,
	}
}

// NormalizePhone strips every non-digit and validates the remaining length.
// "+55 (88) 99999-9999" and "5588999999999" normalize to the same key.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if len(digits) < 10 || len(digits) > 15 {
		return "", domain.ErrInvalidPhone(raw)
	}
	return digits, nil
}

// Check answers whether the phone exists. A valid cache entry answers without
// touching the instance, so cached numbers keep working while the session is
// down. On a miss, or when the caller forces a fresh check, the token must be
// bound to a connected instance.
func (s *Service) Check(ctx context.Context, token *domain.APIToken, req Request) (*Result, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	if !req.Force {
		if entry, err := s.cache.GetValid(ctx, phone); err != nil {
			log.Warn().Err(err).Str("phone", phone).Msg("Cache lookup failed")
		} else if entry != nil {
			result := &Result{
				PhoneNumber: phone,
				Exists:      entry.IsValid,
				WhatsAppJID: entry.WhatsAppJID,
				Cached:      true,
				CheckedAt:   entry.LastChecked,
			}
			s.audit(ctx, token, phone, entry.IsValid, req)
			s.consumeQuota(ctx, token)
			return result, nil
		}
	}

	if !token.HasInstance() {
		return nil, domain.ErrNoInstanceBound()
	}

	checker, ok := s.conns(token.InstanceID)
	if !ok {
		return nil, domain.NewNotConnectedError(token.InstanceID)
	}

	answer, err := checker.CheckNumber(ctx, phone)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	entry := &domain.PhoneCache{
		PhoneNumber: phone,
		IsValid:     answer.Exists,
		WhatsAppJID: answer.JID,
		LastChecked: now,
		ExpiresAt:   now.Add(s.cacheTTL),
	}
	if err := s.cache.Upsert(ctx, entry); err != nil {
		log.Warn().Err(err).Str("phone", phone).Msg("Failed to cache check result")
	}

	s.audit(ctx, token, phone, answer.Exists, req)
	s.consumeQuota(ctx, token)

	return &Result{
		PhoneNumber: phone,
		Exists:      answer.Exists,
		WhatsAppJID: answer.JID,
		Cached:      false,
		ForcedCheck: req.Force,
		CheckedAt:   now,
	}, nil
}

// Stats aggregates audit and cache counters, optionally scoped to one owner.
func (s *Service) Stats(ctx context.Context, owner *domain.UserID) (*domain.VerificationStats, error) {
	stats, err := s.logs.Stats(ctx, owner)
	if err != nil {
		return nil, err
	}

	size, err := s.cache.CountValid(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to count cache entries")
	} else {
		stats.CacheSize = size
	}
	return stats, nil
}

// SweepCache physically removes expired cache rows.
func (s *Service) SweepCache(ctx context.Context) (int64, error) {
	removed, err := s.cache.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Info().Int64("removed", removed).Msg("Expired cache entries removed")
	}
	return removed, nil
}

// consumeQuota counts one answered check against the token. Usage is charged
// only for answers, so invalid input, offline instances, and upstream
// failures leave the quota untouched.
func (s *Service) consumeQuota(ctx context.Context, token *domain.APIToken) {
	if s.consume == nil || token == nil {
		return
	}
	if err := s.consume(ctx, token); err != nil {
		log.Warn().Err(err).Int64("token_id", token.ID).Msg("Failed to count token usage")
	}
}

// audit records one check in the log, best effort.
func (s *Service) audit(ctx context.Context, token *domain.APIToken, phone string, valid bool, req Request) {
	entry := &domain.VerificationLog{
		PhoneNumber: phone,
		IsValid:     valid,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
	}
	if token != nil {
		entry.TokenID = token.ID
		entry.UserID = token.UserID
	}

	if err := s.logs.Insert(ctx, entry); err != nil {
		log.Warn().Err(err).Str("phone", phone).Msg("Failed to write verification log")
	}
}
