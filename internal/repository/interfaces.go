// Package repository defines data access interfaces for radiarr entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/radiarr/internal/models"
)

// OutcomeCount represents a session outcome with its occurrence count.
type OutcomeCount struct {
	Outcome string `json:"outcome"`
	Count   int64  `json:"count"`
}

// SessionRecordRepository defines operations for the session journal.
type SessionRecordRepository interface {
	// Create appends a completed session to the journal.
	Create(ctx context.Context, record *models.SessionRecord) error
	// GetBySessionID retrieves a journal entry by its session ID.
	GetBySessionID(ctx context.Context, sessionID string) (*models.SessionRecord, error)
	// ListRecent retrieves the most recent entries, newest first.
	ListRecent(ctx context.Context, limit int) ([]*models.SessionRecord, error)
	// ListByDevice retrieves the most recent entries for a device, newest first.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]*models.SessionRecord, error)
	// ListSince retrieves entries started at or after the given time, newest first.
	ListSince(ctx context.Context, since time.Time, limit int) ([]*models.SessionRecord, error)
	// CountByOutcome returns per-outcome entry counts.
	CountByOutcome(ctx context.Context) ([]OutcomeCount, error)
	// DeleteOlderThan removes entries that started before the cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ProbeVerdictRepository defines operations for the probe verdict cache.
type ProbeVerdictRepository interface {
	// GetByURL retrieves a cached verdict by source URL.
	GetByURL(ctx context.Context, sourceURL string) (*models.ProbeVerdict, error)
	// Upsert creates or replaces the verdict for a source URL.
	Upsert(ctx context.Context, verdict *models.ProbeVerdict) error
	// Touch increments the hit count for a source URL.
	Touch(ctx context.Context, sourceURL string) error
	// DeleteByURL removes the verdict for a source URL.
	DeleteByURL(ctx context.Context, sourceURL string) error
	// DeleteExpired removes verdicts past their expiry time.
	DeleteExpired(ctx context.Context) (int64, error)
	// Count returns the number of cached verdicts.
	Count(ctx context.Context) (int64, error)
}
