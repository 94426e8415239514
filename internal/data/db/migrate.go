package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&cdg.Conversation{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
