package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jmylchreest/radiarr/internal/models"
)

// probeVerdictRepository implements ProbeVerdictRepository using GORM.
type probeVerdictRepository struct {
	db *gorm.DB
}

// NewProbeVerdictRepository creates a new ProbeVerdictRepository.
func NewProbeVerdictRepository(db *gorm.DB) ProbeVerdictRepository {
	return &probeVerdictRepository{db: db}
}

// GetByURL retrieves a cached verdict by source URL.
func (r *probeVerdictRepository) GetByURL(ctx context.Context, sourceURL string) (*models.ProbeVerdict, error) {
	var verdict models.ProbeVerdict
	if err := r.db.WithContext(ctx).First(&verdict, "source_url = ?", sourceURL).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &verdict, nil
}

// Upsert creates or replaces the verdict for a source URL.
func (r *probeVerdictRepository) Upsert(ctx context.Context, verdict *models.ProbeVerdict) error {
	if err := verdict.Validate(); err != nil {
		return fmt.Errorf("validating probe verdict: %w", err)
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"compatible",
			"codec", "container", "content_type", "resolved_url",
			"checked_at", "expires_at", "hit_count",
			"updated_at",
		}),
	}).Create(verdict).Error
}

// Touch increments the hit count for a source URL.
func (r *probeVerdictRepository) Touch(ctx context.Context, sourceURL string) error {
	// UpdateColumns skips hooks since this is a partial update.
	result := r.db.WithContext(ctx).Model(&models.ProbeVerdict{}).
		Where("source_url = ?", sourceURL).
		UpdateColumns(map[string]any{
			"hit_count":  gorm.Expr("hit_count + 1"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrSourceURLNotFound
	}
	return nil
}

// DeleteByURL removes the verdict for a source URL.
func (r *probeVerdictRepository) DeleteByURL(ctx context.Context, sourceURL string) error {
	return r.db.WithContext(ctx).Delete(&models.ProbeVerdict{}, "source_url = ?", sourceURL).Error
}

// DeleteExpired removes verdicts past their expiry time.
func (r *probeVerdictRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&models.ProbeVerdict{}, "expires_at < ?", time.Now().UTC())
	return result.RowsAffected, result.Error
}

// Count returns the number of cached verdicts.
func (r *probeVerdictRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ProbeVerdict{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Ensure probeVerdictRepository implements ProbeVerdictRepository.
var _ ProbeVerdictRepository = (*probeVerdictRepository)(nil)
