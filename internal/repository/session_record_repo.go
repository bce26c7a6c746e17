// Package repository provides data access implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/radiarr/internal/models"
)

// sessionRecordRepository implements SessionRecordRepository using GORM.
type sessionRecordRepository struct {
	db *gorm.DB
}

// NewSessionRecordRepository creates a new SessionRecordRepository.
func NewSessionRecordRepository(db *gorm.DB) SessionRecordRepository {
	return &sessionRecordRepository{db: db}
}

// Create appends a completed session to the journal.
func (r *sessionRecordRepository) Create(ctx context.Context, record *models.SessionRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("validating session record: %w", err)
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// GetBySessionID retrieves a journal entry by its session ID.
func (r *sessionRecordRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	var record models.SessionRecord
	if err := r.db.WithContext(ctx).First(&record, "session_id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// ListRecent retrieves the most recent entries, newest first.
func (r *sessionRecordRepository) ListRecent(ctx context.Context, limit int) ([]*models.SessionRecord, error) {
	var records []*models.SessionRecord
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListByDevice retrieves the most recent entries for a device, newest first.
func (r *sessionRecordRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]*models.SessionRecord, error) {
	var records []*models.SessionRecord
	if err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("started_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ListSince retrieves entries started at or after the given time, newest first.
func (r *sessionRecordRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]*models.SessionRecord, error) {
	var records []*models.SessionRecord
	if err := r.db.WithContext(ctx).
		Where("started_at >= ?", since).
		Order("started_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CountByOutcome returns per-outcome entry counts.
func (r *sessionRecordRepository) CountByOutcome(ctx context.Context) ([]OutcomeCount, error) {
	var counts []OutcomeCount
	if err := r.db.WithContext(ctx).
		Model(&models.SessionRecord{}).
		Select("outcome, COUNT(*) as count").
		Group("outcome").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	return counts, nil
}

// DeleteOlderThan removes entries that started before the cutoff.
func (r *sessionRecordRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&models.SessionRecord{}, "started_at < ?", cutoff)
	return result.RowsAffected, result.Error
}

// Ensure sessionRecordRepository implements SessionRecordRepository.
var _ SessionRecordRepository = (*sessionRecordRepository)(nil)
