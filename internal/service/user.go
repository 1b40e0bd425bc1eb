package service

import (
	"context"
	"errors"
	"fmt"

	"ImageVault/internal/model"
	"ImageVault/internal/repo"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrLoginTaken — логин уже занят.
	ErrLoginTaken = errors.New("service: login already taken")
	// ErrInvalidCredentials — неверная пара логин/пароль.
	ErrInvalidCredentials = errors.New("service: invalid credentials")
)

// UserService — регистрация и вход владельцев объектов.
type UserService struct {
	users repo.UserRepository
}

// NewUserService создаёт сервис пользователей.
func NewUserService(users repo.UserRepository) *UserService {
	return &UserService{users: users}
}

// Register создаёт пользователя с bcrypt-хешем пароля.
func (s *UserService) Register(ctx context.Context, login, password string) (*model.User, error) {
	if login == "" || password == "" {
		return nil, ErrInvalidInput
	}
	existing, err := s.users.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup user: %v", ErrStorage, err)
	}
	if existing != nil {
		return nil, ErrLoginTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.CreateUser(ctx, &model.User{
		ID:       uuid.NewString(),
		Login:    login,
		Password: string(hash),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create user: %v", ErrStorage, err)
	}
	return user, nil
}

// Login сверяет пароль с хешем и возвращает пользователя.
func (s *UserService) Login(ctx context.Context, login, password string) (*model.User, error) {
	if login == "" || password == "" {
		return nil, ErrInvalidInput
	}
	user, err := s.users.GetUserByLogin(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup user: %v", ErrStorage, err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
