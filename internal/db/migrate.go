package db

import (
	"fmt"

	"github.com/zulandar/bankline/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model bankline persists.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.ChatSession{},
		&models.SessionMessage{},
		&models.UnansweredQuestion{},
		&models.WorkerLog{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
