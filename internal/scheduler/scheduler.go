// Package scheduler runs radiarr's recurring maintenance: pruning session
// journal entries past their retention and expiring cached probe verdicts.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/radiarr/internal/repository"
)

// Config holds the maintenance schedules. Cron expressions use six fields,
// seconds first; descriptors like @hourly are accepted too.
type Config struct {
	// JournalRetention is how long finished session records are kept.
	JournalRetention time.Duration

	// JournalPruneCron is when journal entries past retention are removed.
	JournalPruneCron string

	// ProbeCachePruneCron is when expired probe verdicts are removed.
	ProbeCachePruneCron string
}

// DefaultConfig returns the default maintenance schedules.
func DefaultConfig() Config {
	return Config{
		JournalRetention:    30 * 24 * time.Hour,
		JournalPruneCron:    "0 0 * * * *",
		ProbeCachePruneCron: "0 */10 * * * *",
	}
}

// Scheduler owns the cron engine driving the maintenance jobs.
type Scheduler struct {
	mu sync.RWMutex

	journalRepo repository.SessionRecordRepository
	verdictRepo repository.ProbeVerdictRepository

	logger *slog.Logger
	config Config
	parser cron.Parser

	cron         *cron.Cron
	journalEntry cron.EntryID
	verdictEntry cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler with the default configuration.
func NewScheduler(
	journalRepo repository.SessionRecordRepository,
	verdictRepo repository.ProbeVerdictRepository,
) *Scheduler {
	return &Scheduler{
		journalRepo: journalRepo,
		verdictRepo: verdictRepo,
		logger:      slog.Default(),
		config:      DefaultConfig(),
		parser: cron.NewParser(
			cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// WithConfig applies configuration to the scheduler.
func (s *Scheduler) WithConfig(config Config) *Scheduler {
	if config.JournalRetention > 0 {
		s.config.JournalRetention = config.JournalRetention
	}
	if config.JournalPruneCron != "" {
		s.config.JournalPruneCron = config.JournalPruneCron
	}
	if config.ProbeCachePruneCron != "" {
		s.config.ProbeCachePruneCron = config.ProbeCachePruneCron
	}
	return s
}

// Start registers the maintenance jobs and begins firing them.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithChain(cron.Recover(cronLogger{s.logger})),
	)

	journalEntry, err := c.AddFunc(s.config.JournalPruneCron, s.pruneJournal)
	if err != nil {
		return fmt.Errorf("journal prune schedule %q: %w", s.config.JournalPruneCron, err)
	}
	verdictEntry, err := c.AddFunc(s.config.ProbeCachePruneCron, s.pruneVerdicts)
	if err != nil {
		return fmt.Errorf("probe cache prune schedule %q: %w", s.config.ProbeCachePruneCron, err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = c
	s.journalEntry = journalEntry
	s.verdictEntry = verdictEntry
	c.Start()

	s.logger.Info("Maintenance scheduler started",
		slog.Duration("journal_retention", s.config.JournalRetention),
		slog.String("journal_prune_cron", s.config.JournalPruneCron),
		slog.String("probe_cache_prune_cron", s.config.ProbeCachePruneCron))

	return nil
}

// Stop cancels the jobs and waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()

	s.mu.Lock()
	s.cron = nil
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info("Maintenance scheduler stopped")
}

// Status reports the scheduler state for diagnostics.
type Status struct {
	Running           bool       `json:"running"`
	JournalNextRun    *time.Time `json:"journal_next_run,omitempty"`
	ProbeCacheNextRun *time.Time `json:"probe_cache_next_run,omitempty"`
}

// GetStatus returns the current scheduler status.
func (s *Scheduler) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{Running: s.cron != nil}
	if s.cron == nil {
		return status
	}
	if next := s.cron.Entry(s.journalEntry).Next; !next.IsZero() {
		status.JournalNextRun = &next
	}
	if next := s.cron.Entry(s.verdictEntry).Next; !next.IsZero() {
		status.ProbeCacheNextRun = &next
	}
	return status
}

// NextRun returns the next execution time of a cron expression.
func (s *Scheduler) NextRun(expr string) (time.Time, error) {
	schedule, err := s.parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule.Next(time.Now()), nil
}

// ValidateCron validates a cron expression.
func (s *Scheduler) ValidateCron(expr string) error {
	_, err := s.parser.Parse(expr)
	return err
}

// runCtx returns the context jobs run under, nil when not started.
func (s *Scheduler) runCtx() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// pruneJournal removes session records that started before the retention
// cutoff.
func (s *Scheduler) pruneJournal() {
	ctx := s.runCtx()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	cutoff := time.Now().Add(-s.config.JournalRetention)
	deleted, err := s.journalRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("Journal prune failed", slog.Any("error", err))
		return
	}
	if deleted > 0 {
		s.logger.Info("Journal pruned",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff))
	}
}

// pruneVerdicts removes probe verdicts past their expiry.
func (s *Scheduler) pruneVerdicts() {
	ctx := s.runCtx()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	deleted, err := s.verdictRepo.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("Probe cache prune failed", slog.Any("error", err))
		return
	}
	if deleted > 0 {
		s.logger.Info("Probe cache pruned", slog.Int64("deleted", deleted))
	}
}

// cronLogger adapts slog to the cron logger interface used by the recovery
// wrapper.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{slog.Any("error", err)}, keysAndValues...)
	l.logger.Error(msg, args...)
}
