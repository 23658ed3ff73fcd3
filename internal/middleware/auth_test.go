package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/zzjunior/whatsapp-checker-api/internal/auth"
	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
)

type stubUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func (s *stubUserRepo) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = domain.UserID(len(s.users) + 1)
	s.users[user.Username] = user
	return nil
}

func (s *stubUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return nil, domain.NewNotFoundError("user", username)
	}
	return user, nil
}

func (s *stubUserRepo) GetByID(context.Context, domain.UserID) (*domain.User, error) {
	return nil, domain.NewNotFoundError("user", "")
}

func (s *stubUserRepo) GetAll(context.Context) ([]*domain.User, error) { return nil, nil }

func (s *stubUserRepo) UpdatePassword(context.Context, domain.UserID, string) error { return nil }

func (s *stubUserRepo) Delete(context.Context, domain.UserID) error { return nil }

type stubTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*domain.APIToken
}

func (s *stubTokenRepo) Create(_ context.Context, token *domain.APIToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token.ID = int64(len(s.tokens) + 1)
	s.tokens[token.Token] = token
	return nil
}

func (s *stubTokenRepo) GetBySecret(_ context.Context, secret string) (*domain.APIToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[secret]
	if !ok || !token.Active {
		return nil, domain.NewNotFoundError("api token", secret)
	}
	clone := *token
	return &clone, nil
}

func (s *stubTokenRepo) GetByUser(context.Context, domain.UserID) ([]*domain.APIToken, error) {
	return nil, nil
}

func (s *stubTokenRepo) IncrementUsage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range s.tokens {
		if token.ID == id {
			token.RequestsUsed++
			return nil
		}
	}
	return domain.NewNotFoundError("api token", fmt.Sprintf("%d", id))
}

func (s *stubTokenRepo) Deactivate(context.Context, int64) error { return nil }

func (s *stubTokenRepo) CountActive(context.Context, domain.UserID) (int64, error) { return 0, nil }

func newTestAuth(t *testing.T) *auth.Service {
	t.Helper()
	return auth.NewService(
		&stubUserRepo{users: make(map[string]*domain.User)},
		&stubTokenRepo{tokens: make(map[string]*domain.APIToken)},
		"middleware-test-secret",
		time.Hour,
		bcrypt.MinCost,
	)
}

func okHandler(hit *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuth_MissingHeader(t *testing.T) {
	svc := newTestAuth(t)

	var hit bool
	handler := AdminAuth(svc)(okHandler(&hit))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, hit)
}

func TestAdminAuth_InvalidToken(t *testing.T) {
	svc := newTestAuth(t)

	var hit bool
	handler := AdminAuth(svc)(okHandler(&hit))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, hit)
}

func TestAdminAuth_ValidTokenExposesClaims(t *testing.T) {
	svc := newTestAuth(t)
	_, err := svc.CreateUser(context.Background(), "alice", "hunter22", domain.RoleAdmin)
	require.NoError(t, err)
	jwt, _, err := svc.Login(context.Background(), "alice", "hunter22")
	require.NoError(t, err)

	var claims *auth.Claims
	handler := AdminAuth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+jwt)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
}

func TestRequireAdmin_BlocksRegularUsers(t *testing.T) {
	svc := newTestAuth(t)
	_, err := svc.CreateUser(context.Background(), "bob", "hunter22", domain.RoleUser)
	require.NoError(t, err)
	jwt, _, err := svc.Login(context.Background(), "bob", "hunter22")
	require.NoError(t, err)

	var hit bool
	handler := AdminAuth(svc)(RequireAdmin(okHandler(&hit)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+jwt)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, hit)
}

func TestAPITokenAuth_MissingToken(t *testing.T) {
	svc := newTestAuth(t)

	var hit bool
	handler := APITokenAuth(svc)(okHandler(&hit))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/check", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, hit)
}

func TestAPITokenAuth_UnknownToken(t *testing.T) {
	svc := newTestAuth(t)

	var hit bool
	handler := APITokenAuth(svc)(okHandler(&hit))

	req := httptest.NewRequest(http.MethodPost, "/check", nil)
	req.Header.Set("X-API-Token", "nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, hit)
}

func TestAPITokenAuth_ValidTokenExposesTokenWithoutConsuming(t *testing.T) {
	svc := newTestAuth(t)
	token, err := svc.CreateToken(context.Background(), 1, "checker", 2, 10, nil)
	require.NoError(t, err)

	var seen *domain.APIToken
	handler := APITokenAuth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = TokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// Bearer and X-API-Token are interchangeable. Authentication alone never
	// burns quota; the counter moves only when a check produces an answer.
	for _, set := range []func(*http.Request){
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token.Token) },
		func(r *http.Request) { r.Header.Set("X-API-Token", token.Token) },
	} {
		req := httptest.NewRequest(http.MethodPost, "/check", nil)
		set(req)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, token.ID, seen.ID)
		assert.Equal(t, domain.InstanceID(2), seen.InstanceID)
		assert.Equal(t, 0, seen.RequestsUsed)
	}
}

func TestAPITokenAuth_QuotaExhaustedReturns429(t *testing.T) {
	svc := newTestAuth(t)
	token, err := svc.CreateToken(context.Background(), 1, "checker", 0, 2, nil)
	require.NoError(t, err)

	var hits int
	handler := APITokenAuth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))

	do := func() int {
		req := httptest.NewRequest(http.MethodPost, "/check", nil)
		req.Header.Set("X-API-Token", token.Token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// Each answered check consumes one unit downstream; the gate rejects at
	// exactly the limit.
	consume := func() {
		verified, err := svc.VerifyAPIToken(context.Background(), token.Token)
		require.NoError(t, err)
		require.NoError(t, svc.ConsumeToken(context.Background(), verified))
	}

	assert.Equal(t, http.StatusOK, do())
	consume()
	assert.Equal(t, http.StatusOK, do())
	consume()
	assert.Equal(t, http.StatusTooManyRequests, do())
	assert.Equal(t, 2, hits)
}
