package db

import (
	"backend-triptracker/internal/config"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite opens the on-device trip database, nil when no path is set.
func OpenSQLite(cfg config.Config) (*gorm.DB, error) {
	if cfg.SQLitePath == "" {
		return nil, nil
	}
	return gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}
