package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmylchreest/radiarr/internal/ffmpeg"
)

// State is the lifecycle phase of a relay session. Every transition is a
// single atomic update under the session mutex.
type State string

const (
	// StateStarting means the session slot is installed but the transcoder
	// has not been confirmed alive yet.
	StateStarting State = "starting"
	// StateTranscoding means the transcoder is running and producing output
	// but no consumer has connected yet.
	StateTranscoding State = "transcoding"
	// StateStreaming means a consumer is actively reading the relay output.
	StateStreaming State = "streaming"
	// StateStalled means the consumer disconnected while the transcoder is
	// still running. The session stays addressable for the stall grace
	// window so the speaker can reconnect during its own retries.
	StateStalled State = "stalled"
	// StateStopped is terminal: the transcoder is terminated and all
	// resources are released.
	StateStopped State = "stopped"
	// StateError is terminal: the transcoder failed to spawn or exited
	// unexpectedly. The failure is retained for status reporting.
	StateError State = "error"
)

// Terminal reports whether the state is final. Terminal sessions never
// transition again and hold no process or pipe resources.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateError
}

func (s State) String() string {
	return string(s)
}

// Session relays one station to one device: a supervised transcoder feeding
// a single consumer through an unbuffered pipe. A device has at most one
// Session at any instant; the Registry enforces that by tearing down the old
// session before installing a replacement.
type Session struct {
	ID        uuid.UUID
	DeviceID  string
	SourceURL string
	CreatedAt time.Time

	config RegistryConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// The pipe connects the transcoder's stdout to the HTTP consumer. It is
	// unbuffered, so a slow consumer blocks the pump and the transcoder
	// stalls on its own stdout write instead of growing memory.
	pipeR *io.PipeReader
	pipeW *io.PipeWriter

	mu                sync.RWMutex
	state             State
	err               error
	cmd               *ffmpeg.Command
	consumerConnected bool
	lastActivity      time.Time
	stalledSince      time.Time
	endedAt           time.Time

	pumpDone chan struct{}
	endOnce  sync.Once
	deadOnce sync.Once
}

func newSession(parent context.Context, deviceID, sourceURL string, config RegistryConfig, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	pr, pw := io.Pipe()

	s := &Session{
		ID:           uuid.New(),
		DeviceID:     deviceID,
		SourceURL:    sourceURL,
		CreatedAt:    time.Now(),
		config:       config,
		ctx:          ctx,
		cancel:       cancel,
		pipeR:        pr,
		pipeW:        pw,
		state:        StateStarting,
		lastActivity: time.Now(),
		pumpDone:     make(chan struct{}),
	}
	s.logger = logger.With(
		slog.String("session_id", s.ID.String()),
		slog.String("device_id", deviceID))
	return s
}

// Start spawns the transcoder for the session source and confirms it is
// alive. On success the session is in StateTranscoding and the stream
// endpoint may attach a consumer. A spawn failure is terminal: the session
// moves to StateError and the returned error wraps ErrSpawnFailure.
//
// If the session was replaced or released while the spawn was in flight,
// the freshly started process is terminated again and ErrSessionClosed is
// returned, so a racing play request never leaves an orphan behind.
func (s *Session) Start(ctx context.Context) error {
	bin, err := s.config.Detector.Detect(ctx)
	if err != nil {
		return s.failSpawn(fmt.Errorf("%w: %v", ErrSpawnFailure, err))
	}

	cmd := ffmpeg.NewCommandBuilder(bin.FFmpegPath).
		HideBanner().
		Reconnect().
		UserAgent(s.config.UserAgent).
		Input(s.SourceURL).
		AudioBitrate(s.config.Bitrate).
		SampleRate(s.config.SampleRate).
		Format(OutputFormat).
		FlushPackets().
		KillGrace(s.config.KillGrace).
		Build()

	if err := cmd.Start(s.ctx); err != nil {
		return s.failSpawn(fmt.Errorf("%w: %v", ErrSpawnFailure, err))
	}

	s.mu.Lock()
	if s.state != StateStarting {
		// Replaced or released while spawning. The slot is no longer ours,
		// so the process we just started has to go.
		s.mu.Unlock()
		if termErr := cmd.Terminate(s.config.KillGrace); termErr != nil {
			s.logger.Error("Failed to terminate superseded transcoder",
				slog.Int("pid", cmd.Pid()),
				slog.String("error", termErr.Error()))
		}
		return ErrSessionClosed
	}
	s.cmd = cmd
	s.state = StateTranscoding
	s.lastActivity = time.Now()
	s.mu.Unlock()

	s.logger.Info("Transcoder started",
		slog.Int("pid", cmd.Pid()),
		slog.String("source_url", s.SourceURL))

	go s.pump(cmd)
	return nil
}

// failSpawn records a spawn failure as the session's terminal state.
func (s *Session) failSpawn(cause error) error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = StateError
	s.err = cause
	s.endedAt = time.Now()
	s.mu.Unlock()

	s.cancel()
	s.pipeW.CloseWithError(cause)
	s.pipeR.CloseWithError(cause)

	s.logger.Error("Transcoder spawn failed",
		slog.String("source_url", s.SourceURL),
		slog.String("error", cause.Error()))

	s.finish()
	return cause
}

// pump copies transcoder output into the session pipe until the process
// exits or the session is torn down. It owns the terminal transition for
// exits the registry did not initiate.
func (s *Session) pump(cmd *ffmpeg.Command) {
	defer close(s.pumpDone)

	err := cmd.StreamTo(s.pipeW)

	s.mu.Lock()
	if s.state.Terminal() {
		// Teardown initiated elsewhere owns the bookkeeping.
		s.mu.Unlock()
		return
	}
	s.consumerConnected = false
	s.endedAt = time.Now()
	if crash := crashError(cmd, err); crash != nil {
		s.state = StateError
		s.err = crash
	} else {
		// The source ended and the transcoder exited cleanly.
		s.state = StateStopped
	}
	cause := s.err
	s.mu.Unlock()

	s.cancel()
	if cause != nil {
		s.pipeW.CloseWithError(cause)
	} else {
		s.pipeW.Close()
	}
	s.pipeR.CloseWithError(ErrSessionClosed)

	if cause != nil {
		s.logger.Error("Transcoder exited unexpectedly", slog.String("error", cause.Error()))
	} else {
		s.logger.Info("Transcoder finished", slog.Duration("ran_for", cmd.Duration()))
	}

	s.finish()
}

// crashError maps a pump exit error to ErrProcessCrash, attaching the tail
// of the transcoder's stderr when one was captured. A nil result means the
// exit does not count as a crash.
func crashError(cmd *ffmpeg.Command, err error) error {
	if err == nil || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}
	if tail := stderrTail(cmd); tail != "" {
		return fmt.Errorf("%w: %v (%s)", ErrProcessCrash, err, tail)
	}
	return fmt.Errorf("%w: %v", ErrProcessCrash, err)
}

// stderrTail returns the last few stderr lines for error reports.
func stderrTail(cmd *ffmpeg.Command) string {
	lines := cmd.GetStderrLines()
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return strings.Join(lines, "; ")
}

// Close tears the session down into StateStopped: the transcoder receives a
// graceful stop, then a kill after the grace window, and Close returns only
// after the process has been reaped and the pipe is closed. Idempotent, and
// safe on a session whose process already exited.
func (s *Session) Close() error {
	return s.shutdown(StateStopped, nil)
}

func (s *Session) shutdown(target State, cause error) error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}
	s.state = target
	if cause != nil {
		s.err = cause
	}
	s.consumerConnected = false
	s.endedAt = time.Now()
	cmd := s.cmd
	s.mu.Unlock()

	s.cancel()

	// Closing the read end first unblocks a pump stuck writing to a
	// consumer that is slow or gone; its copy returns ErrClosedPipe
	// instead of waiting forever.
	s.pipeR.CloseWithError(ErrSessionClosed)

	var termErr error
	if cmd != nil {
		termErr = cmd.Terminate(s.config.KillGrace)
		<-s.pumpDone
	}
	if cause != nil {
		s.pipeW.CloseWithError(cause)
	} else {
		s.pipeW.Close()
	}

	s.finish()
	return termErr
}

// handleProcessDeath converts a silently dead transcoder into a terminal
// state. The pump normally observes exits directly; this path covers a
// pump blocked on its final pipe write when the consumer never drained it.
func (s *Session) handleProcessDeath() {
	s.mu.RLock()
	cmd := s.cmd
	terminal := s.state.Terminal()
	s.mu.RUnlock()
	if terminal || cmd == nil {
		return
	}

	s.deadOnce.Do(func() {
		go func() {
			err := cmd.Wait()
			if crash := crashError(cmd, err); crash != nil {
				s.shutdown(StateError, crash)
			} else {
				s.shutdown(StateStopped, nil)
			}
		}()
	})
}

// finish fires the end-of-session hook exactly once, after the terminal
// transition has been recorded.
func (s *Session) finish() {
	s.endOnce.Do(func() {
		stats := s.Stats()
		s.logger.Info("Session ended",
			slog.String("state", stats.State.String()),
			slog.Uint64("bytes_relayed", stats.BytesRelayed),
			slog.Duration("lifetime", time.Since(s.CreatedAt)))
		if s.config.OnSessionEnd != nil {
			go s.config.OnSessionEnd(stats)
		}
	})
}

// AttachConsumer marks the consumer connected and hands back the relay byte
// stream. Exactly one consumer may read a session at a time; a second
// attach while the first is connected returns ErrConsumerAttached. A
// reconnect within the stall grace window resumes the same transcoder.
func (s *Session) AttachConsumer() (io.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateTranscoding, StateStalled:
	case StateStreaming:
		return nil, ErrConsumerAttached
	case StateStarting:
		return nil, ErrSessionNotReady
	default:
		return nil, ErrSessionClosed
	}

	s.state = StateStreaming
	s.consumerConnected = true
	s.lastActivity = time.Now()
	s.stalledSince = time.Time{}
	return s.pipeR, nil
}

// DetachConsumer marks the consumer gone and opens the stall grace window.
// A disconnect is normal speaker behavior, not an error; the janitor stops
// the session only if nothing reconnects within the grace window.
func (s *Session) DetachConsumer() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.consumerConnected {
		return
	}
	s.consumerConnected = false
	s.lastActivity = time.Now()
	if s.state == StateStreaming {
		s.state = StateStalled
		s.stalledSince = time.Now()
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the recorded terminal error, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Alive reports whether the transcoder process is currently running.
func (s *Session) Alive() bool {
	s.mu.RLock()
	cmd := s.cmd
	s.mu.RUnlock()
	return cmd != nil && cmd.Alive()
}

// SessionStats is a point-in-time snapshot of a session for the status and
// diagnostics endpoints and for the session journal.
type SessionStats struct {
	ID                uuid.UUID    `json:"id"`
	DeviceID          string       `json:"device_id"`
	SourceURL         string       `json:"source_url"`
	State             State        `json:"state"`
	ConsumerConnected bool         `json:"consumer_connected"`
	CreatedAt         time.Time    `json:"created_at"`
	LastActivity      time.Time    `json:"last_activity"`
	StalledSince      *time.Time   `json:"stalled_since,omitempty"`
	EndedAt           *time.Time   `json:"ended_at,omitempty"`
	BytesRelayed      uint64       `json:"bytes_relayed"`
	Error             string       `json:"error,omitempty"`
	Process           *ProcessInfo `json:"process,omitempty"`
}

// ProcessInfo is the transcoder resource view embedded in SessionStats.
type ProcessInfo struct {
	PID            int     `json:"pid"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryRSSBytes uint64  `json:"memory_rss_bytes"`
	MemoryPercent  float64 `json:"memory_percent"`
	WriteRateKbps  float64 `json:"write_rate_kbps"`
	UptimeSecs     float64 `json:"uptime_secs"`
}

// Stats returns a snapshot of the session.
func (s *Session) Stats() SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := SessionStats{
		ID:                s.ID,
		DeviceID:          s.DeviceID,
		SourceURL:         s.SourceURL,
		State:             s.state,
		ConsumerConnected: s.consumerConnected,
		CreatedAt:         s.CreatedAt,
		LastActivity:      s.lastActivity,
	}
	if !s.stalledSince.IsZero() {
		t := s.stalledSince
		stats.StalledSince = &t
	}
	if !s.endedAt.IsZero() {
		t := s.endedAt
		stats.EndedAt = &t
	}
	if s.err != nil {
		stats.Error = s.err.Error()
	}
	if s.cmd != nil {
		if ps := s.cmd.ProcessStats(); ps != nil {
			stats.BytesRelayed = ps.BytesWritten
			stats.Process = &ProcessInfo{
				PID:            ps.PID,
				CPUPercent:     ps.CPUPercent,
				MemoryRSSBytes: ps.MemoryRSSBytes,
				MemoryPercent:  ps.MemoryPercent,
				WriteRateKbps:  ps.WriteRateKbps,
				UptimeSecs:     ps.Duration.Seconds(),
			}
		}
	}
	return stats
}
