// Package gorm provides GORM-based storage for per-chat usage statistics.
package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// migrations returns the ordered schema history.
func migrations() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		// Migration 001: per-chat counters
		{
			ID: "001_chat_stats",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&ChatStat{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("chat_stats")
			},
		},
	}
}

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, migrations())
	return m.Migrate()
}
