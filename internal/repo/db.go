// Package repo — доступ к метаданным через gorm: postgres в бою,
// sqlite в тестах и при локальной разработке.
package repo

import (
	"fmt"
	"strings"

	"ImageVault/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB открывает соединение по DSN и прогоняет автомиграции.
// postgres распознаётся по префиксу DSN, всё остальное считается sqlite
// (включая ":memory:" в тестах).
func InitDB(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		dialector = postgres.Open(dsn)
	} else {
		if dsn == "" {
			dsn = "imagevault.db"
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("repo: open db: %w", err)
	}

	if err := db.AutoMigrate(&model.User{}, &model.ObjectRecord{}); err != nil {
		return nil, fmt.Errorf("repo: migrate: %w", err)
	}
	return db, nil
}
