package db

import (
	"gorm.io/gorm"

	"github.com/quickread/quickread-backend/internal/domain"
)

// AutoMigrateAll keeps migration order parent-first so cascade FKs exist
// before their dependents.
func AutoMigrateAll(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&domain.Document{},
		&domain.Chunk{},
		&domain.Embedding{},
	)
}
