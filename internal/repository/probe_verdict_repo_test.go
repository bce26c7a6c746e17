package repository

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

func setupProbeVerdictTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.ProbeVerdict{})
	require.NoError(t, err)

	return db
}

func createTestVerdict(t *testing.T, sourceURL string, compatible bool) *models.ProbeVerdict {
	t.Helper()
	now := time.Now().UTC()
	return &models.ProbeVerdict{
		SourceURL:   sourceURL,
		Compatible:  compatible,
		Codec:       "mp3",
		Container:   "mpeg",
		ContentType: "audio/mpeg",
		CheckedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
}

func TestProbeVerdictRepo_Upsert_CreatesAndUpdates(t *testing.T) {
	db := setupProbeVerdictTestDB(t)
	repo := NewProbeVerdictRepository(db)
	ctx := context.Background()

	verdict := createTestVerdict(t, "http://radio.example.com/stream", true)
	require.NoError(t, repo.Upsert(ctx, verdict))

	found, err := repo.GetByURL(ctx, "http://radio.example.com/stream")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.Compatible)
	assert.Equal(t, "mp3", found.Codec)

	// Second upsert for the same URL replaces the verdict
	updated := createTestVerdict(t, "http://radio.example.com/stream", false)
	updated.Codec = "aac"
	require.NoError(t, repo.Upsert(ctx, updated))

	found, err = repo.GetByURL(ctx, "http://radio.example.com/stream")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.False(t, found.Compatible)
	assert.Equal(t, "aac", found.Codec)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestProbeVerdictRepo_Upsert_Validation(t *testing.T) {
	db := setupProbeVerdictTestDB(t)
	repo := NewProbeVerdictRepository(db)
	ctx := context.Background()

	err := repo.Upsert(ctx, &models.ProbeVerdict{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "validating probe verdict")
}

func TestProbeVerdictRepo_GetByURL_NotFound(t *testing.T) {
	db := setupProbeVerdictTestDB(t)
	repo := NewProbeVerdictRepository(db)
	ctx := context.Background()

	found, err := repo.GetByURL(ctx, "http://unknown.example.com/stream")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestProbeVerdictRepo_Touch(t *testing.T) {
	db := setupProbeVerdictTestDB(t)
	repo := NewProbeVerdictRepository(db)
	ctx := context.Background()

	verdict := createTestVerdict(t, "http://radio.example.com/stream", true)
	require.NoError(t, repo.Upsert(ctx, verdict))

	require.NoError(t, repo.Touch(ctx, "http://radio.example.com/stream"))
	require.NoError(t, repo.Touch(ctx, "http://radio.example.com/stream"))

	found, err := repo.GetByURL(ctx, "http://radio.example.com/stream")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, int64(2), found.HitCount)
}

func TestProbeVerdictRepo_Touch_NotFound(t *testing.T) {
	db := setupProbeVerdictTestDB(t)
	repo := NewProbeVerdictRepository(db)
	ctx := context.Background()

	err := repo.Touch(ctx, "http://unknown.example.com/stream")
	assert.ErrorIs(t, err, models.ErrSourceURLNotFound)
}

func TestProbeVerdictRepo_DeleteByURL(t *testing.T) {
	db := setupProbeVerdictTestDB(t)
	repo := NewProbeVerdictRepository(db)
	ctx := context.Background()

	verdict := createTestVerdict(t, "http://radio.example.com/stream", true)
	require.NoError(t, repo.Upsert(ctx, verdict))

	require.NoError(t, repo.DeleteByURL(ctx, "http://radio.example.com/stream"))

	found, err := repo.GetByURL(ctx, "http://radio.example.com/stream")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestProbeVerdictRepo_DeleteExpired(t *testing.T) {
	db := setupProbeVerdictTestDB(t)
	repo := NewProbeVerdictRepository(db)
	ctx := context.Background()

	fresh := createTestVerdict(t, "http://fresh.example.com/stream", true)
	require.NoError(t, repo.Upsert(ctx, fresh))

	stale := createTestVerdict(t, "http://stale.example.com/stream", true)
	stale.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, repo.Upsert(ctx, stale))

	deleted, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	found, err := repo.GetByURL(ctx, "http://stale.example.com/stream")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = repo.GetByURL(ctx, "http://fresh.example.com/stream")
	require.NoError(t, err)
	assert.NotNil(t, found)
}
