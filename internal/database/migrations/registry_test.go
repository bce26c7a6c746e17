package migrations

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/radiarr/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db
}

func TestAllMigrations_VersionsAreUnique(t *testing.T) {
	migrations := AllMigrations()
	versions := make(map[string]bool)

	for _, m := range migrations {
		assert.False(t, versions[m.Version], "duplicate version: %s", m.Version)
		versions[m.Version] = true
	}
}

func TestAllMigrations_VersionsAreOrdered(t *testing.T) {
	migrations := AllMigrations()

	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].Version, migrations[i].Version,
			"migrations should be in ascending version order")
	}
}

func TestMigrator_Up_AllMigrations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)

	assert.True(t, db.Migrator().HasTable("session_records"))
	assert.True(t, db.Migrator().HasTable("probe_verdicts"))
	assert.True(t, db.Migrator().HasTable("schema_migrations"))
}

func TestMigrator_Up_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	// Running migrations twice should not error
	err := migrator.Up(ctx)
	require.NoError(t, err)

	err = migrator.Up(ctx)
	require.NoError(t, err)
}

func TestMigrator_Status(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	statuses, err := migrator.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, len(AllMigrations()))

	for _, s := range statuses {
		assert.False(t, s.Applied)
		assert.Nil(t, s.AppliedAt)
	}

	err = migrator.Up(ctx)
	require.NoError(t, err)

	statuses, err = migrator.Status(ctx)
	require.NoError(t, err)

	for _, s := range statuses {
		assert.True(t, s.Applied)
		assert.NotNil(t, s.AppliedAt)
	}
}

func TestMigrator_Down_RollsBackSchema(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable("session_records"))
	assert.True(t, db.Migrator().HasTable("probe_verdicts"))

	err = migrator.Down(ctx)
	require.NoError(t, err)

	assert.False(t, db.Migrator().HasTable("session_records"))
	assert.False(t, db.Migrator().HasTable("probe_verdicts"))
}

func TestMigrator_Down_NothingApplied(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	// Rolling back with no applied migrations is a no-op
	err := migrator.Down(ctx)
	require.NoError(t, err)
}

func TestMigrations_CanInsertData(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)

	record := &models.SessionRecord{
		SessionID:   "8b7f2b60-1234-4cde-9f00-aabbccddeeff",
		DeviceID:    "RINCON_000E58A0B1C2",
		StationName: "Test FM",
		SourceURL:   "http://radio.example.com/stream",
		Outcome:     models.SessionOutcomeStopped,
		StartedAt:   time.Now().UTC(),
	}
	err = db.Create(record).Error
	require.NoError(t, err)
	assert.False(t, record.ID.IsZero())

	verdict := &models.ProbeVerdict{
		SourceURL:   "http://radio.example.com/stream",
		Compatible:  true,
		Codec:       "mp3",
		ContentType: "audio/mpeg",
		CheckedAt:   time.Now().UTC(),
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}
	err = db.Create(verdict).Error
	require.NoError(t, err)
	assert.False(t, verdict.ID.IsZero())

	// SourceURL carries a unique index
	dup := &models.ProbeVerdict{
		SourceURL:  "http://radio.example.com/stream",
		Compatible: false,
		CheckedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
	err = db.Create(dup).Error
	assert.Error(t, err)
}
