package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
)

// Claims is the JWT payload for admin-panel sessions.
type Claims struct {
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username"`
	Role     domain.Role   `json:"role"`
	jwt.RegisteredClaims
}

// Service handles admin-panel authentication and API token management.
type Service struct {
	users  domain.UserRepository
	tokens domain.TokenRepository

	jwtSecret  []byte
	tokenTTL   time.Duration
	bcryptCost int
}

// NewService creates the auth service.
func NewService(users domain.UserRepository, tokens domain.TokenRepository, jwtSecret string, tokenTTL time.Duration, bcryptCost int) *Service {
	return &Service{
		users:      users,
		tokens:     tokens,
		jwtSecret:  []byte(jwtSecret),
		tokenTTL:   tokenTTL,
		bcryptCost: bcryptCost,
	}
}

// Login verifies the credentials and issues a signed JWT.
func (s *Service) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		// Same answer for unknown user and wrong password.
		return "", nil, domain.NewForbiddenError("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, domain.NewForbiddenError("invalid credentials")
	}

	now := time.Now()
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	log.Info().
		Int64("user_id", int64(user.ID)).
		Str("username", user.Username).
		Msg("User logged in")

	return signed, user, nil
}

// ValidateJWT parses and verifies an admin session token.
func (s *Service) ValidateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, domain.NewForbiddenError("invalid or expired token")
	}
	return claims, nil
}

// CreateUser registers a new admin-panel user with a bcrypt-hashed password.
func (s *Service) CreateUser(ctx context.Context, username, password string, role domain.Role) (*domain.User, error) {
	if len(password) < 6 {
		return nil, domain.NewValidationError("password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Username: username,
		Password: string(hash),
		Role:     role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	log.Info().
		Int64("user_id", int64(user.ID)).
		Str("username", username).
		Str("role", string(role)).
		Msg("User created")

	return user, nil
}

// ChangePassword replaces a user's password hash.
func (s *Service) ChangePassword(ctx context.Context, id domain.UserID, password string) error {
	if len(password) < 6 {
		return domain.NewValidationError("password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.users.UpdatePassword(ctx, id, string(hash))
}

// EnsureDefaultAdmin seeds the initial admin account when it does not exist
// yet. No-op when the username is taken or password is empty.
func (s *Service) EnsureDefaultAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil
	}

	_, err := s.CreateUser(ctx, username, password, domain.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to seed default admin: %w", err)
	}

	log.Info().Str("username", username).Msg("Default admin account created")
	return nil
}

// CreateToken issues a new API token for an owner, optionally bound to an
// instance and with an expiry. limit <= 0 falls back to the default quota.
func (s *Service) CreateToken(ctx context.Context, owner domain.UserID, name string, instanceID domain.InstanceID, limit int, expiresAt *time.Time) (*domain.APIToken, error) {
	if name == "" {
		return nil, domain.NewValidationError("token name is required")
	}
	if limit <= 0 {
		limit = 1000
	}

	token := &domain.APIToken{
		UserID:        owner,
		InstanceID:    instanceID,
		Token:         uuid.New().String(),
		Name:          name,
		RequestsLimit: limit,
		Active:        true,
		ExpiresAt:     expiresAt,
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, err
	}

	log.Info().
		Int64("token_id", token.ID).
		Int64("user_id", int64(owner)).
		Str("name", name).
		Msg("API token created")

	return token, nil
}

// VerifyAPIToken resolves a bearer secret to an active, unexpired token with
// quota remaining. The quota check runs before any usage increment, so a
// token is rejected exactly when requests_used has reached requests_limit.
func (s *Service) VerifyAPIToken(ctx context.Context, secret string) (*domain.APIToken, error) {
	token, err := s.tokens.GetBySecret(ctx, secret)
	if err != nil {
		return nil, domain.NewForbiddenError("invalid API token")
	}

	if token.IsExpired() {
		return nil, domain.NewForbiddenError("API token expired")
	}
	if token.QuotaReached() {
		return nil, domain.NewQuotaExceededError(token.RequestsLimit)
	}
	return token, nil
}

// ConsumeToken counts one request against the token's quota.
func (s *Service) ConsumeToken(ctx context.Context, token *domain.APIToken) error {
	if err := s.tokens.IncrementUsage(ctx, token.ID); err != nil {
		return err
	}
	token.RequestsUsed++
	return nil
}

// ListTokens returns every token belonging to the owner.
func (s *Service) ListTokens(ctx context.Context, owner domain.UserID) ([]*domain.APIToken, error) {
	return s.tokens.GetByUser(ctx, owner)
}

// RevokeToken deactivates one of the owner's tokens.
func (s *Service) RevokeToken(ctx context.Context, owner domain.UserID, tokenID int64) error {
	tokens, err := s.tokens.GetByUser(ctx, owner)
	if err != nil {
		return err
	}

	for _, t := range tokens {
		if t.ID == tokenID {
			if err := s.tokens.Deactivate(ctx, tokenID); err != nil {
				return err
			}
			log.Info().
				Int64("token_id", tokenID).
				Int64("user_id", int64(owner)).
				Msg("API token revoked")
			return nil
		}
	}
	return domain.NewNotFoundError("api token", fmt.Sprintf("%d", tokenID))
}
