package infrastructure

import (
	"time"

	"github.com/arcrelay/geminiproxy/internal/config"
	"github.com/arcrelay/geminiproxy/internal/repository"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the Postgres connection and runs schema migrations. Timezone
// is set process-wide first (affects how gorm/postgres interpret timestamp
// columns) since nothing in the retrieved examples provides a timezone
// helper package worth adopting for a single time.LoadLocation call.
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, err
		}
		time.Local = loc
	}

	gormConfig := &gorm.Config{}
	if cfg.Server.Mode == "debug" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSNWithTimezone(cfg.Timezone)), gormConfig)
	if err != nil {
		return nil, err
	}

	if err := repository.AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}
