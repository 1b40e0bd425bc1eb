package repo

import (
	"context"
	"errors"

	"ImageVault/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound — объект с таким ID отсутствует.
var ErrNotFound = errors.New("repo: record not found")

// ObjectRepository — контракт доступа к ObjectRecord для слоя сервиса.
type ObjectRepository interface {
	// Create сохраняет новую запись. Повторная вставка того же ID — no-op.
	Create(ctx context.Context, rec *model.ObjectRecord) error

	// GetByID возвращает запись либо ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.ObjectRecord, error)

	// Delete удаляет запись; отсутствие записи ошибкой не считается.
	Delete(ctx context.Context, id string) error

	// ListByOwner возвращает записи пользователя, новые первыми.
	ListByOwner(ctx context.Context, ownerUserID string) ([]model.ObjectRecord, error)
}

type objectRepo struct {
	db *gorm.DB
}

// NewObjectRepository создаёт реализацию репозитория для ObjectRecord.
func NewObjectRepository(db *gorm.DB) ObjectRepository {
	return &objectRepo{db: db}
}

func (r *objectRepo) Create(ctx context.Context, rec *model.ObjectRecord) error {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(rec)
	return tx.Error
}

func (r *objectRepo) GetByID(ctx context.Context, id string) (*model.ObjectRecord, error) {
	var rec model.ObjectRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *objectRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&model.ObjectRecord{}, "id = ?", id).Error
}

func (r *objectRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]model.ObjectRecord, error) {
	var recs []model.ObjectRecord
	err := r.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerUserID).
		Order("created_at DESC").
		Find(&recs).Error
	return recs, err
}
