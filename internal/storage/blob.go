// Package storage — хранилища шифртекста. Сервисный слой работает только
// с интерфейсом BlobStore; конкретная реализация (файловая система, S3,
// память для тестов) выбирается конфигурацией при старте.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound — блоб с таким локатором отсутствует.
var ErrNotFound = errors.New("storage: blob not found")

// BlobStore хранит непрозрачные байты по выданному им же локатору.
type BlobStore interface {
	// Put сохраняет данные и возвращает локатор.
	Put(ctx context.Context, data []byte) (string, error)
	// Get возвращает данные по локатору либо ErrNotFound.
	Get(ctx context.Context, locator string) ([]byte, error)
	// Delete удаляет блоб; отсутствие блоба ошибкой не считается.
	Delete(ctx context.Context, locator string) error
}
