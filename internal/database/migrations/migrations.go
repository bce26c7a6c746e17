// Package migrations provides database migration management for radiarr.
// Migrations are versioned, applied in order, and tracked in a
// schema_migrations table.
package migrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"
)

// Migration represents a single database migration.
type Migration struct {
	Version     string
	Description string
	Up          func(tx *gorm.DB) error
	Down        func(tx *gorm.DB) error
}

// MigrationRecord tracks applied migrations in the database.
type MigrationRecord struct {
	ID          uint      `gorm:"primarykey"`
	Version     string    `gorm:"uniqueIndex;not null"`
	Description string    `gorm:"not null"`
	AppliedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for migration records.
func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// MigrationStatus describes whether a registered migration has been applied.
type MigrationStatus struct {
	Version     string
	Description string
	Applied     bool
	AppliedAt   *time.Time
}

// Migrator applies and rolls back registered migrations.
type Migrator struct {
	db         *gorm.DB
	logger     *slog.Logger
	migrations []Migration
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *gorm.DB, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{
		db:     db,
		logger: logger,
	}
}

// RegisterAll adds migrations to the registry.
func (m *Migrator) RegisterAll(migrations []Migration) {
	m.migrations = append(m.migrations, migrations...)
}

// Init creates the migration tracking table if it doesn't exist.
func (m *Migrator) Init(ctx context.Context) error {
	return m.db.WithContext(ctx).AutoMigrate(&MigrationRecord{})
}

// Up applies all pending migrations in version order.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.Init(ctx); err != nil {
		return fmt.Errorf("initializing migrations table: %w", err)
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return fmt.Errorf("getting applied migrations: %w", err)
	}

	for _, migration := range m.sorted() {
		if _, ok := applied[migration.Version]; ok {
			continue
		}

		m.logger.InfoContext(ctx, "applying migration",
			slog.String("version", migration.Version),
			slog.String("description", migration.Description),
		)

		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return err
			}
			return tx.Create(&MigrationRecord{
				Version:     migration.Version,
				Description: migration.Description,
				AppliedAt:   time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("applying migration %s: %w", migration.Version, err)
		}
	}

	return nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.Init(ctx); err != nil {
		return fmt.Errorf("initializing migrations table: %w", err)
	}

	var record MigrationRecord
	if err := m.db.WithContext(ctx).Order("version DESC").First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			m.logger.InfoContext(ctx, "no migrations to roll back")
			return nil
		}
		return fmt.Errorf("getting last migration: %w", err)
	}

	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == record.Version {
			migration = &m.migrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration definition not found for version %s", record.Version)
	}
	if migration.Down == nil {
		return fmt.Errorf("migration %s does not support rollback", record.Version)
	}

	m.logger.InfoContext(ctx, "rolling back migration",
		slog.String("version", migration.Version),
		slog.String("description", migration.Description),
	)

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := migration.Down(tx); err != nil {
			return err
		}
		return tx.Where("version = ?", migration.Version).Delete(&MigrationRecord{}).Error
	})
	if err != nil {
		return fmt.Errorf("rolling back migration %s: %w", migration.Version, err)
	}

	return nil
}

// Status returns the applied state of every registered migration.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing migrations table: %w", err)
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting applied migrations: %w", err)
	}

	sorted := m.sorted()
	statuses := make([]MigrationStatus, 0, len(sorted))
	for _, migration := range sorted {
		status := MigrationStatus{
			Version:     migration.Version,
			Description: migration.Description,
		}
		if record, ok := applied[migration.Version]; ok {
			status.Applied = true
			status.AppliedAt = &record.AppliedAt
		}
		statuses = append(statuses, status)
	}

	return statuses, nil
}

// sorted returns registered migrations ordered by version.
func (m *Migrator) sorted() []Migration {
	sorted := make([]Migration, len(m.migrations))
	copy(sorted, m.migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})
	return sorted
}

// applied returns applied migration records keyed by version.
func (m *Migrator) applied(ctx context.Context) (map[string]MigrationRecord, error) {
	var records []MigrationRecord
	if err := m.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, err
	}

	applied := make(map[string]MigrationRecord, len(records))
	for _, record := range records {
		applied[record.Version] = record
	}
	return applied, nil
}
