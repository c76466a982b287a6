package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jayjaytrn/order-management-system/internal/clock"
	"github.com/jayjaytrn/order-management-system/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]models.User)}
}

func (f *fakeUserStore) PutUniqueUser(_ context.Context, user models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.Email]; ok {
		return models.ErrUserExists
	}
	f.users[user.Email] = user
	return nil
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[email]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}
	return user, nil
}

func TestAuthenticator(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC))
	store := newFakeUserStore()
	a := NewAuthenticator(store, newTestTokenService(clk), clk, zap.NewNop().Sugar())

	user, err := a.Register(ctx, models.RegisterRequest{
		Name:     "Ada",
		Email:    "  Ada@Example.com ",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEqual(t, "correct horse", user.Password)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := a.Register(ctx, models.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "another pass"})
		assert.ErrorIs(t, err, models.ErrUserExists)
	})

	t.Run("invalid registration", func(t *testing.T) {
		_, err := a.Register(ctx, models.RegisterRequest{Name: "Bob", Email: "not-an-email", Password: "long enough"})
		assert.ErrorIs(t, err, ErrInvalidRegistration)

		_, err = a.Register(ctx, models.RegisterRequest{Name: "Bob", Email: "bob@example.com", Password: "short"})
		assert.ErrorIs(t, err, ErrInvalidRegistration)
	})

	t.Run("login issues tokens for the user", func(t *testing.T) {
		pair, err := a.Login(ctx, models.Credentials{Email: "ADA@example.com", Password: "correct horse"})
		require.NoError(t, err)

		owner, err := a.Tokens.Validate(ctx, pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, user.ID, owner)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := a.Login(ctx, models.Credentials{Email: "ada@example.com", Password: "wrong horse"})
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := a.Login(ctx, models.Credentials{Email: "eve@example.com", Password: "whatever1"})
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	})
}
