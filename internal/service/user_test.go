package service

import (
	"context"
	"testing"

	"ImageVault/internal/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newUserService(t *testing.T) *UserService {
	t.Helper()
	db, err := repo.InitDB(":memory:")
	require.NoError(t, err)
	return NewUserService(repo.NewUserRepository(db))
}

func TestUserService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	s := newUserService(t)

	u, err := s.Register(ctx, "alice", "str0ng-pass")
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)
	// пароль хранится только как bcrypt-хеш
	assert.NotEqual(t, "str0ng-pass", u.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("str0ng-pass")))

	got, err := s.Login(ctx, "alice", "str0ng-pass")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestUserService_LoginTaken(t *testing.T) {
	ctx := context.Background()
	s := newUserService(t)

	_, err := s.Register(ctx, "alice", "pass-one")
	require.NoError(t, err)
	_, err = s.Register(ctx, "alice", "pass-two")
	assert.ErrorIs(t, err, ErrLoginTaken)
}

func TestUserService_InvalidCredentials(t *testing.T) {
	ctx := context.Background()
	s := newUserService(t)

	_, err := s.Register(ctx, "alice", "correct")
	require.NoError(t, err)

	_, err = s.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Login(ctx, "nobody", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserService_EmptyInput(t *testing.T) {
	ctx := context.Background()
	s := newUserService(t)

	_, err := s.Register(ctx, "", "pass")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.Register(ctx, "alice", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.Login(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
