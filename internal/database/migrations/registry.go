// Package migrations provides database migration management for radiarr.
package migrations

import (
	"gorm.io/gorm"

	"github.com/jmylchreest/radiarr/internal/models"
)

// AllMigrations returns all registered migrations in order.
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
	}
}

// migration001Schema creates the database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create session journal and probe verdict tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.SessionRecord{},
				&models.ProbeVerdict{},
			)
		},
		Down: func(tx *gorm.DB) error {
			tables := []string{
				"probe_verdicts",
				"session_records",
			}
			for _, table := range tables {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}
