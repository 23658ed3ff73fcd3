package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
)

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	byName map[string]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byName: make(map[string]*domain.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byName[user.Username]; ok {
		return domain.NewAlreadyExistsError("user", "username", user.Username)
	}
	f.nextID++
	user.ID = domain.UserID(f.nextID)
	f.byName[user.Username] = user
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id domain.UserID) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.byName {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, domain.NewNotFoundError("user", "")
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byName[username]
	if !ok {
		return nil, domain.NewNotFoundError("user", username)
	}
	return user, nil
}

func (f *fakeUserRepo) GetAll(_ context.Context) ([]*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.User, 0, len(f.byName))
	for _, user := range f.byName {
		out = append(out, user)
	}
	return out, nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, id domain.UserID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.byName {
		if user.ID == id {
			user.Password = hash
			return nil
		}
	}
	return domain.NewNotFoundError("user", "")
}

func (f *fakeUserRepo) Delete(_ context.Context, id domain.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, user := range f.byName {
		if user.ID == id {
			delete(f.byName, name)
			return nil
		}
	}
	return domain.NewNotFoundError("user", "")
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*domain.APIToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{rows: make(map[int64]*domain.APIToken)}
}

func (f *fakeTokenRepo) Create(_ context.Context, token *domain.APIToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	token.ID = f.nextID
	f.rows[token.ID] = token
	return nil
}

func (f *fakeTokenRepo) GetBySecret(_ context.Context, secret string) (*domain.APIToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, token := range f.rows {
		if token.Token == secret && token.Active {
			// Copies, like a real row scan.
			clone := *token
			return &clone, nil
		}
	}
	return nil, domain.NewNotFoundError("api token", secret)
}

func (f *fakeTokenRepo) GetByUser(_ context.Context, owner domain.UserID) ([]*domain.APIToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.APIToken
	for _, token := range f.rows {
		if token.UserID == owner {
			out = append(out, token)
		}
	}
	return out, nil
}

func (f *fakeTokenRepo) IncrementUsage(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.rows[id]
	if !ok {
		return domain.NewNotFoundError("api token", "")
	}
	token.RequestsUsed++
	return nil
}

func (f *fakeTokenRepo) Deactivate(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.rows[id]
	if !ok {
		return domain.NewNotFoundError("api token", "")
	}
	token.Active = false
	return nil
}

func (f *fakeTokenRepo) CountActive(_ context.Context, owner domain.UserID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, token := range f.rows {
		if token.UserID == owner && token.Active {
			count++
		}
	}
	return count, nil
}

func newTestService() (*Service, *fakeUserRepo, *fakeTokenRepo) {
	users := newFakeUserRepo()
	tokens := newFakeTokenRepo()
	// MinCost keeps the hashing fast in tests.
	svc := NewService(users, tokens, "test-secret", time.Hour, bcrypt.MinCost)
	return svc, users, tokens
}

func TestService_CreateUserHashesPassword(t *testing.T) {
	svc, users, _ := newTestService()

	user, err := svc.CreateUser(context.Background(), "alice", "hunter22", domain.RoleUser)
	require.NoError(t, err)

	stored := users.byName["alice"]
	assert.NotEqual(t, "hunter22", stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("hunter22")))
	assert.Equal(t, domain.RoleUser, user.Role)
}

func TestService_CreateUserRejectsShortPassword(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreateUser(context.Background(), "alice", "short", domain.RoleUser)
	var validation *domain.ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestService_LoginIssuesValidJWT(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreateUser(context.Background(), "alice", "hunter22", domain.RoleAdmin)
	require.NoError(t, err)

	signed, user, err := svc.Login(context.Background(), "alice", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	claims, err := svc.ValidateJWT(signed)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
}

func TestService_LoginRejectsBadCredentials(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.CreateUser(context.Background(), "alice", "hunter22", domain.RoleUser)
	require.NoError(t, err)

	var forbidden *domain.ForbiddenError

	_, _, err = svc.Login(context.Background(), "alice", "wrong")
	assert.ErrorAs(t, err, &forbidden)

	_, _, err = svc.Login(context.Background(), "nobody", "hunter22")
	assert.ErrorAs(t, err, &forbidden)
}

func TestService_ValidateJWTRejectsGarbage(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.ValidateJWT("not-a-jwt")
	var forbidden *domain.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)
}

func TestService_ValidateJWTRejectsWrongKey(t *testing.T) {
	svc, _, _ := newTestService()
	other := NewService(newFakeUserRepo(), newFakeTokenRepo(), "other-secret", time.Hour, bcrypt.MinCost)

	_, err := svc.CreateUser(context.Background(), "alice", "hunter22", domain.RoleUser)
	require.NoError(t, err)
	signed, _, err := svc.Login(context.Background(), "alice", "hunter22")
	require.NoError(t, err)

	_, err = other.ValidateJWT(signed)
	var forbidden *domain.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)
}

func TestService_EnsureDefaultAdmin(t *testing.T) {
	svc, users, _ := newTestService()

	require.NoError(t, svc.EnsureDefaultAdmin(context.Background(), "admin", "changeme"))
	require.NotNil(t, users.byName["admin"])
	assert.True(t, users.byName["admin"].IsAdmin())

	// Idempotent: a second call must not fail or duplicate.
	require.NoError(t, svc.EnsureDefaultAdmin(context.Background(), "admin", "changeme"))
	assert.Len(t, users.byName, 1)

	// Empty password disables seeding.
	require.NoError(t, svc.EnsureDefaultAdmin(context.Background(), "other", ""))
	assert.Len(t, users.byName, 1)
}

func TestService_CreateTokenDefaults(t *testing.T) {
	svc, _, _ := newTestService()

	token, err := svc.CreateToken(context.Background(), 1, "reporting", 3, 0, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, token.Token)
	assert.Equal(t, 1000, token.RequestsLimit)
	assert.True(t, token.Active)
	assert.Equal(t, domain.InstanceID(3), token.InstanceID)
}

func TestService_VerifyAPIToken(t *testing.T) {
	svc, _, tokens := newTestService()

	token, err := svc.CreateToken(context.Background(), 1, "reporting", 3, 5, nil)
	require.NoError(t, err)

	got, err := svc.VerifyAPIToken(context.Background(), token.Token)
	require.NoError(t, err)
	assert.Equal(t, token.ID, got.ID)

	t.Run("unknown secret", func(t *testing.T) {
		_, err := svc.VerifyAPIToken(context.Background(), "no-such-token")
		var forbidden *domain.ForbiddenError
		assert.ErrorAs(t, err, &forbidden)
	})

	t.Run("revoked", func(t *testing.T) {
		require.NoError(t, tokens.Deactivate(context.Background(), token.ID))
		_, err := svc.VerifyAPIToken(context.Background(), token.Token)
		var forbidden *domain.ForbiddenError
		assert.ErrorAs(t, err, &forbidden)
	})
}

func TestService_VerifyAPITokenExpiry(t *testing.T) {
	svc, _, _ := newTestService()

	past := time.Now().Add(-time.Minute)
	token, err := svc.CreateToken(context.Background(), 1, "old", 0, 0, &past)
	require.NoError(t, err)

	_, err = svc.VerifyAPIToken(context.Background(), token.Token)
	var forbidden *domain.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)
}

func TestService_QuotaEnforcedExactlyAtLimit(t *testing.T) {
	svc, _, _ := newTestService()

	token, err := svc.CreateToken(context.Background(), 1, "limited", 0, 3, nil)
	require.NoError(t, err)

	// Requests 1..N pass, each consuming quota.
	for i := 0; i < 3; i++ {
		got, err := svc.VerifyAPIToken(context.Background(), token.Token)
		require.NoError(t, err, "request %d within quota", i+1)
		require.NoError(t, svc.ConsumeToken(context.Background(), got))
	}

	// Request N+1 is rejected.
	_, err = svc.VerifyAPIToken(context.Background(), token.Token)
	var quota *domain.QuotaExceededError
	require.ErrorAs(t, err, &quota)
	assert.Equal(t, 3, token.RequestsUsed)
}

func TestService_RevokeToken(t *testing.T) {
	svc, _, tokens := newTestService()

	token, err := svc.CreateToken(context.Background(), 1, "mine", 0, 0, nil)
	require.NoError(t, err)

	t.Run("not the owner", func(t *testing.T) {
		err := svc.RevokeToken(context.Background(), 2, token.ID)
		var notFound *domain.NotFoundError
		assert.ErrorAs(t, err, &notFound)
		assert.True(t, tokens.rows[token.ID].Active)
	})

	t.Run("owner revokes", func(t *testing.T) {
		require.NoError(t, svc.RevokeToken(context.Background(), 1, token.ID))
		assert.False(t, tokens.rows[token.ID].Active)
	})
}

func TestService_ChangePassword(t *testing.T) {
	svc, _, _ := newTestService()

	user, err := svc.CreateUser(context.Background(), "alice", "hunter22", domain.RoleUser)
	require.NoError(t, err)

	require.NoError(t, svc.ChangePassword(context.Background(), user.ID, "newsecret"))

	_, _, err = svc.Login(context.Background(), "alice", "hunter22")
	assert.Error(t, err)

	_, _, err = svc.Login(context.Background(), "alice", "newsecret")
	assert.NoError(t, err)
}
