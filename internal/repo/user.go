package repo

import (
	"context"
	"errors"

	"ImageVault/internal/model"

	"gorm.io/gorm"
)

// UserRepository — минимальный контракт доступа к User.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) (*model.User, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
}

type userRepo struct {
	db *gorm.DB
}

// NewUserRepository создаёт реализацию репозитория для User.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByLogin возвращает (nil, nil), если пользователя нет —
// сервис сам решает, ошибка это или нормальный исход.
func (r *userRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).First(&user, "login = ?", login).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
