// Package db holds the shared database and cache connections. Both are
// optional: when persistence is disabled in the configuration the
// handles stay nil and callers fall back to in-memory behavior.
package db

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"stemdeck/config"
	"stemdeck/logger"
)

// GormDB is the shared database handle, nil when persistence is
// disabled.
var GormDB *gorm.DB

// ConnectGormDB opens the MySQL connection and configures the pool.
func ConnectGormDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	GormDB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return fmt.Errorf("db: connect: %w", err)
	}

	sqlDB, err := GormDB.DB()
	if err != nil {
		return fmt.Errorf("db: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Info("database connected",
		logger.String("host", cfg.DBHost),
		logger.String("name", cfg.DBName))
	return nil
}

// CloseGormDB closes the underlying connection pool. Safe to call when
// the database was never connected.
func CloseGormDB() error {
	if GormDB == nil {
		return nil
	}
	sqlDB, err := GormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrateModels migrates the given model types.
func AutoMigrateModels(models ...interface{}) error {
	if GormDB == nil {
		return fmt.Errorf("db: not connected")
	}
	if err := GormDB.AutoMigrate(models...); err != nil {
		return fmt.Errorf("db: auto migrate: %w", err)
	}
	return nil
}
