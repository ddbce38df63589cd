package db

import (
	"fmt"                           // Error wrapping
	"server_rental/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus" // Structured logging
	"gorm.io/gorm"               // GORM ORM library
	"gorm.io/gorm/clause"        // Conflict clauses
)

// Migrate creates or updates the schema and seeds the settings row
func Migrate(db *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	if err := db.AutoMigrate(&domain.User{}, &domain.Server{}, &domain.Settings{}, &domain.Transaction{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	// Seed the singleton settings row, leaving an existing one untouched
	settings := domain.DefaultSettings()
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&settings).Error; err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	logrus.Info("Migration completed.") // Log successful migration
	return nil
}
