// Package db opens the shared gorm handle. Repositories run raw SQL
// through it and the settlement service wraps it in transactions, so
// gorm's per-statement default transaction is disabled here.
package db

import (
	"time"

	"github.com/mentorhive/mentorhive/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Open builds the shared gorm handle with pool limits from config.
func Open(cfg config.Config) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)

	return conn, nil
}

var Module = fx.Module("db",
	fx.Provide(Open),
)
