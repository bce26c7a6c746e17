// Package relay manages the per-device transcode sessions that bridge
// incompatible station streams to the speakers. Each session supervises one
// FFmpeg process and exposes its output as a live byte stream; the registry
// guarantees a device never has more than one session at a time.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmylchreest/radiarr/internal/ffmpeg"
	"github.com/jmylchreest/radiarr/internal/probe"
)

// ErrSessionNotFound is returned when no session exists for a device or
// session identifier.
var ErrSessionNotFound = errors.New("relay session not found")

// ErrSessionClosed is returned when trying to use a session that has
// reached a terminal state.
var ErrSessionClosed = errors.New("relay session closed")

// ErrSessionNotReady is returned when a consumer attaches before the
// transcoder has been confirmed alive.
var ErrSessionNotReady = errors.New("relay session not ready")

// ErrConsumerAttached is returned when a second consumer tries to read a
// session that already has one.
var ErrConsumerAttached = errors.New("relay session already has a consumer")

// ErrTooManySessions is returned when the registry is at capacity.
var ErrTooManySessions = errors.New("too many relay sessions")

// ErrSpawnFailure is returned when the transcoder could not be started.
var ErrSpawnFailure = errors.New("transcoder spawn failure")

// ErrProcessCrash is returned when the transcoder exited unexpectedly.
var ErrProcessCrash = errors.New("transcoder exited unexpectedly")

// ErrRegistryClosed is returned when acquiring from a registry that has
// been shut down.
var ErrRegistryClosed = errors.New("relay registry closed")

// Transcode target accepted by every speaker generation the relay serves.
const (
	OutputFormat      = "mp3"
	DefaultBitrate    = "128k"
	DefaultSampleRate = 44100

	// ContentType is the media type of every relay stream.
	ContentType = "audio/mpeg"
)

// RegistryConfig holds configuration for the relay session registry.
type RegistryConfig struct {
	// MaxSessions caps concurrently live sessions across all devices.
	MaxSessions int
	// StallGrace is how long a stalled session stays addressable waiting
	// for its consumer to reconnect before the janitor stops it.
	StallGrace time.Duration
	// KillGrace is how long a terminated transcoder gets between the
	// graceful stop signal and the kill.
	KillGrace time.Duration
	// JanitorInterval is how often stalled and finished sessions are swept.
	JanitorInterval time.Duration
	// TerminalRetention is how long finished sessions remain visible to
	// status queries before the janitor drops them.
	TerminalRetention time.Duration
	// Bitrate and SampleRate describe the fixed speaker-compatible output.
	Bitrate    string
	SampleRate int
	// UserAgent is presented to the station by the transcoder fetch.
	UserAgent string
	// Detector locates the transcoder binary.
	Detector *ffmpeg.BinaryDetector
	// OnSessionEnd, when set, receives a final snapshot after a session
	// reaches a terminal state. Invoked on its own goroutine.
	OnSessionEnd func(SessionStats)
}

// DefaultRegistryConfig returns the defaults the server runs with.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		MaxSessions:       32,
		StallGrace:        15 * time.Second,
		KillGrace:         ffmpeg.DefaultKillGrace,
		JanitorInterval:   1 * time.Second,
		TerminalRetention: 15 * time.Second,
		Bitrate:           DefaultBitrate,
		SampleRate:        DefaultSampleRate,
		UserAgent:         probe.DefaultUserAgent,
	}
}

// Registry owns every relay session, keyed by device. It enforces the
// one-session-per-device invariant with compare-and-replace semantics and
// runs the janitor that expires stalled sessions.
type Registry struct {
	config RegistryConfig
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	byID     map[uuid.UUID]*Session

	// locks serializes acquire and release per device without devices
	// blocking each other.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a registry and starts its janitor.
func NewRegistry(config RegistryConfig) *Registry {
	if config.Detector == nil {
		config.Detector = ffmpeg.NewBinaryDetector()
	}
	if config.JanitorInterval <= 0 {
		config.JanitorInterval = 1 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &Registry{
		config:   config,
		logger:   slog.Default().With(slog.String("component", "relay")),
		sessions: make(map[string]*Session),
		byID:     make(map[uuid.UUID]*Session),
		locks:    make(map[string]*sync.Mutex),
		ctx:      ctx,
		cancel:   cancel,
	}

	r.wg.Add(1)
	go r.janitorLoop()

	return r
}

// deviceLock returns the mutex serializing registry operations for one
// device.
func (r *Registry) deviceLock(deviceID string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[deviceID] = l
	}
	return l
}

// Acquire installs a new session for the device in StateStarting and
// returns it. Any existing session for the device is torn down first, and
// Acquire does not return until that transcoder has been reaped, so two
// processes never serve the same device at once. Calls for the same device
// serialize; different devices proceed independently.
func (r *Registry) Acquire(ctx context.Context, deviceID, sourceURL string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.ctx.Err() != nil {
		return nil, ErrRegistryClosed
	}

	lock := r.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	old := r.sessions[deviceID]
	r.mu.RUnlock()

	if old != nil {
		if err := old.Close(); err != nil {
			// Refuse to install a replacement while the old process may
			// still be running.
			return nil, fmt.Errorf("replacing session for device %s: %w", deviceID, err)
		}
	}

	if r.liveCount() >= r.config.MaxSessions {
		return nil, ErrTooManySessions
	}

	s := newSession(r.ctx, deviceID, sourceURL, r.config, r.logger)

	r.mu.Lock()
	r.sessions[deviceID] = s
	r.byID[s.ID] = s
	if old != nil {
		delete(r.byID, old.ID)
	}
	r.mu.Unlock()

	r.logger.Info("Session acquired",
		slog.String("session_id", s.ID.String()),
		slog.String("device_id", deviceID),
		slog.String("source_url", sourceURL),
		slog.Bool("replaced", old != nil))

	return s, nil
}

// Release tears down and removes the device's session. Idempotent:
// releasing a device with no session is a no-op.
func (r *Registry) Release(deviceID string) error {
	lock := r.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	s := r.sessions[deviceID]
	if s == nil {
		r.mu.Unlock()
		return nil
	}
	delete(r.sessions, deviceID)
	delete(r.byID, s.ID)
	r.mu.Unlock()

	return s.Close()
}

// Get returns the device's current session.
func (r *Registry) Get(deviceID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[deviceID]
	return s, ok
}

// GetByID returns a session by the public identifier used in relay URLs.
func (r *Registry) GetByID(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// liveCount returns the number of non-terminal sessions.
func (r *Registry) liveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if !s.State().Terminal() {
			n++
		}
	}
	return n
}

// janitorLoop periodically sweeps the session table.
func (r *Registry) janitorLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep applies the stall grace window, detects silently dead transcoders
// and drops finished sessions past the retention window.
func (r *Registry) sweep() {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	now := time.Now()
	var drop []*Session

	for _, s := range snapshot {
		s.mu.RLock()
		state := s.state
		stalledSince := s.stalledSince
		endedAt := s.endedAt
		cmd := s.cmd
		s.mu.RUnlock()

		switch {
		case state.Terminal():
			if !endedAt.IsZero() && now.Sub(endedAt) > r.config.TerminalRetention {
				drop = append(drop, s)
			}
		case state == StateStalled && now.Sub(stalledSince) > r.config.StallGrace:
			r.logger.Info("Stall grace expired, stopping session",
				slog.String("session_id", s.ID.String()),
				slog.String("device_id", s.DeviceID),
				slog.Duration("stalled_for", now.Sub(stalledSince)))
			go s.Close()
		case cmd != nil && !cmd.Alive():
			s.handleProcessDeath()
		}
	}

	if len(drop) == 0 {
		return
	}

	r.mu.Lock()
	for _, s := range drop {
		if r.sessions[s.DeviceID] == s {
			delete(r.sessions, s.DeviceID)
		}
		delete(r.byID, s.ID)
	}
	r.mu.Unlock()
}

// RegistryStats summarizes the registry for the diagnostics endpoint.
type RegistryStats struct {
	ActiveSessions int            `json:"active_sessions"`
	MaxSessions    int            `json:"max_sessions"`
	Sessions       []SessionStats `json:"sessions,omitempty"`
}

// Stats snapshots every session. Per-session stats are collected without
// the registry lock so a slow session cannot block acquire or the janitor.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	sessionList := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessionList = append(sessionList, s)
	}
	r.mu.RUnlock()

	stats := RegistryStats{
		MaxSessions: r.config.MaxSessions,
		Sessions:    make([]SessionStats, 0, len(sessionList)),
	}
	for _, s := range sessionList {
		ss := s.Stats()
		if !ss.State.Terminal() {
			stats.ActiveSessions++
		}
		stats.Sessions = append(stats.Sessions, ss)
	}
	return stats
}

// Close shuts down the janitor and tears down every session, returning
// after all transcoders have been reaped.
func (r *Registry) Close() {
	r.cancel()

	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.byID = make(map[uuid.UUID]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Close(); err != nil {
				r.logger.Error("Session teardown failed",
					slog.String("session_id", s.ID.String()),
					slog.String("error", err.Error()))
			}
		}()
	}
	wg.Wait()
	r.wg.Wait()
}
