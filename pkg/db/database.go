package db

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New opens a database connection and migrates the fixed part of the
// schema. Site attributes themselves live in the site_data triple store,
// so an admin adding a property never needs a migration.
func New(ctx context.Context, dialect string, dsn string, config *gorm.Config) (*gorm.DB, error) {
	if config == nil {
		config = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	}

	var db *gorm.DB
	var err error

	switch dialect {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(dsn), config)
		if err == nil {
			db.Exec("PRAGMA foreign_keys = ON")
		}
	case "mysql":
		db, err = gorm.Open(mysql.Open(dsn), config)
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}

	if err != nil {
		return nil, err
	}

	db = db.WithContext(ctx)

	if err := db.AutoMigrate(
		&PropertyGroup{},
		&Property{},
		&PropertyOption{},
		&Site{},
		&SiteData{},
		&ExternalService{},
		&SiteExternalLink{},
		&LogEntry{},
		&User{},
		&Session{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
