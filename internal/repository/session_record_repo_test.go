package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/radiarr/internal/models"
)

func setupSessionRecordTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.SessionRecord{})
	require.NoError(t, err)

	return db
}

func createTestRecord(t *testing.T, deviceID string, startedAt time.Time) *models.SessionRecord {
	t.Helper()
	return &models.SessionRecord{
		SessionID:   fmt.Sprintf("%s-%d", deviceID, startedAt.UnixNano()),
		DeviceID:    deviceID,
		StationName: "Test FM",
		SourceURL:   "http://radio.example.com/stream",
		Outcome:     models.SessionOutcomeStopped,
		StartedAt:   startedAt,
	}
}

func TestSessionRecordRepo_Create(t *testing.T) {
	db := setupSessionRecordTestDB(t)
	repo := NewSessionRecordRepository(db)
	ctx := context.Background()

	record := createTestRecord(t, "RINCON_KITCHEN", time.Now().UTC())
	record.BytesRelayed = 1024

	err := repo.Create(ctx, record)
	require.NoError(t, err)
	assert.False(t, record.ID.IsZero())

	found, err := repo.GetBySessionID(ctx, record.SessionID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "RINCON_KITCHEN", found.DeviceID)
	assert.Equal(t, int64(1024), found.BytesRelayed)
}

func TestSessionRecordRepo_Create_Validation(t *testing.T) {
	db := setupSessionRecordTestDB(t)
	repo := NewSessionRecordRepository(db)
	ctx := context.Background()

	// Missing device ID
	record := &models.SessionRecord{
		SessionID: "abc",
		SourceURL: "http://radio.example.com/stream",
		Outcome:   models.SessionOutcomeStopped,
	}

	err := repo.Create(ctx, record)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "validating session record")
}

func TestSessionRecordRepo_GetBySessionID_NotFound(t *testing.T) {
	db := setupSessionRecordTestDB(t)
	repo := NewSessionRecordRepository(db)
	ctx := context.Background()

	found, err := repo.GetBySessionID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSessionRecordRepo_ListRecent(t *testing.T) {
	db := setupSessionRecordTestDB(t)
	repo := NewSessionRecordRepository(db)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		record := createTestRecord(t, "RINCON_KITCHEN", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, record))
	}

	records, err := repo.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Newest first
	assert.True(t, records[0].StartedAt.After(records[1].StartedAt))
	assert.True(t, records[1].StartedAt.After(records[2].StartedAt))
}

func TestSessionRecordRepo_ListByDevice(t *testing.T) {
	db := setupSessionRecordTestDB(t)
	repo := NewSessionRecordRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, createTestRecord(t, "RINCON_KITCHEN", now.Add(-2*time.Minute))))
	require.NoError(t, repo.Create(ctx, createTestRecord(t, "RINCON_BEDROOM", now.Add(-time.Minute))))
	require.NoError(t, repo.Create(ctx, createTestRecord(t, "RINCON_KITCHEN", now)))

	records, err := repo.ListByDevice(ctx, "RINCON_KITCHEN", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, "RINCON_KITCHEN", r.DeviceID)
	}
}

func TestSessionRecordRepo_ListSince(t *testing.T) {
	db := setupSessionRecordTestDB(t)
	repo := NewSessionRecordRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, createTestRecord(t, "RINCON_KITCHEN", now.Add(-2*time.Hour))))
	require.NoError(t, repo.Create(ctx, createTestRecord(t, "RINCON_KITCHEN", now.Add(-30*time.Minute))))
	require.NoError(t, repo.Create(ctx, createTestRecord(t, "RINCON_KITCHEN", now)))

	records, err := repo.ListSince(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSessionRecordRepo_CountByOutcome(t *testing.T) {
	db := setupSessionRecordTestDB(t)
	repo := NewSessionRecordRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, createTestRecord(t, "RINCON_KITCHEN", now.Add(time.Duration(i)*time.Second))))
	}
	failed := createTestRecord(t, "RINCON_BEDROOM", now)
	failed.Outcome = models.SessionOutcomeError
	failed.Error = "process crashed"
	require.NoError(t, repo.Create(ctx, failed))

	counts, err := repo.CountByOutcome(ctx)
	require.NoError(t, err)

	byOutcome := make(map[string]int64, len(counts))
	for _, c := range counts {
		byOutcome[c.Outcome] = c.Count
	}
	assert.Equal(t, int64(3), byOutcome[models.SessionOutcomeStopped])
	assert.Equal(t, int64(1), byOutcome[models.SessionOutcomeError])
}

func TestSessionRecordRepo_DeleteOlderThan(t *testing.T) {
	db := setupSessionRecordTestDB(t)
	repo := NewSessionRecordRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, createTestRecord(t, "RINCON_KITCHEN", now.Add(-40*24*time.Hour))))
	require.NoError(t, repo.Create(ctx, createTestRecord(t, "RINCON_KITCHEN", now.Add(-35*24*time.Hour))))
	require.NoError(t, repo.Create(ctx, createTestRecord(t, "RINCON_KITCHEN", now)))

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	records, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
