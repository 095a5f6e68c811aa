package usecases

import (
	"context"
	"testing"

	"agyntsynq/internal/entities"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memUsers struct {
	users map[string]*entities.User
}

func (m *memUsers) Create(_ context.Context, u *entities.User) error {
	u.ID = len(m.users) + 1
	cp := *u
	m.users[u.Username] = &cp
	return nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*entities.User, error) {
	u, ok := m.users[username]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func TestAuthUsecase(t *testing.T) {
	ctx := context.Background()
	users := &memUsers{users: map[string]*entities.User{}}
	uc := NewAuthUsecase(users, "test-secret")

	require.NoError(t, uc.Register(ctx, "tenant", "s3cret-pass"))
	assert.ErrorIs(t, uc.Register(ctx, "tenant", "other"), ErrUsernameTaken)

	token, err := uc.Login(ctx, "tenant", "s3cret-pass")
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1), claims["user_id"])
	assert.Equal(t, "user", claims["role"])

	_, err = uc.Login(ctx, "tenant", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = uc.Login(ctx, "nobody", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	users.users["tenant"].IsActive = false
	_, err = uc.Login(ctx, "tenant", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	users := &memUsers{users: map[string]*entities.User{}}
	uc := NewAuthUsecase(users, "test-secret")

	assert.Error(t, uc.EnsureAdmin(ctx, "root", ""))
	require.NoError(t, uc.EnsureAdmin(ctx, "root", "toor-toor"))
	require.NoError(t, uc.EnsureAdmin(ctx, "root", "ignored"))
	assert.Len(t, users.users, 1)
	assert.Equal(t, "admin", users.users["root"].Role)
}
