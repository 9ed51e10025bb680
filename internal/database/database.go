package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"codform/internal/models"
)

type Database struct {
	DB *gorm.DB
}

// New opens the database named by databaseURL and migrates the schema.
// "sqlite://path" selects SQLite (development, tests); anything else is a
// PostgreSQL DSN.
func New(databaseURL string, verbose bool) (*Database, error) {
	mode := gormlogger.Warn
	if verbose {
		mode = gormlogger.Info
	}
	cfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(mode),
	}

	var db *gorm.DB
	var err error
	if strings.HasPrefix(databaseURL, "sqlite://") {
		// SQLite for development
		dbPath := strings.TrimPrefix(databaseURL, "sqlite://")
		db, err = gorm.Open(sqlite.Open(dbPath), cfg)
	} else {
		// PostgreSQL for production
		db, err = gorm.Open(postgres.Open(databaseURL), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &Database{DB: db}
	if err := d.Migrate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Migrate creates or updates every table.
func (d *Database) Migrate() error {
	if err := d.DB.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
