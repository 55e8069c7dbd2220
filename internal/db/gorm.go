package db

import (
	"fmt"
	"log"

	"artboard/internal/config"
	"artboard/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB wraps the GORM database instance.
type GormDB struct {
	*gorm.DB
}

// NewGorm opens the Postgres connection and migrates the schema.
func NewGorm(cfg *config.Config) (*GormDB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Canvas{},
		&models.Snapshot{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("database connected and migrated")

	return &GormDB{db}, nil
}

// Close closes the underlying connection pool.
func (db *GormDB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
