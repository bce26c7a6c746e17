package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmylchreest/radiarr/internal/catalog"
	"github.com/jmylchreest/radiarr/internal/models"
	"github.com/jmylchreest/radiarr/internal/probe"
	"github.com/jmylchreest/radiarr/internal/relay"
	"github.com/jmylchreest/radiarr/internal/repository"
	"github.com/jmylchreest/radiarr/internal/speaker"
)

// ErrNoDevice is returned when a playback request names no device.
var ErrNoDevice = errors.New("no device id")

// ErrNoSource is returned when a play request carries neither a station
// UUID nor a stream URL.
var ErrNoSource = errors.New("no source url")

// ErrUnplayableSource is returned when a source can be neither played
// directly nor relayed.
var ErrUnplayableSource = errors.New("source is not playable")

// Playback defaults.
const (
	// DefaultCacheTTL is how long probe verdicts stay reusable when the
	// configuration does not say otherwise.
	DefaultCacheTTL = time.Hour

	// DefaultHistoryLimit bounds journal listings with no explicit limit.
	DefaultHistoryLimit = 50

	// journalWriteTimeout bounds the journal insert that runs after a
	// session ends, detached from any request context.
	journalWriteTimeout = 5 * time.Second
)

// StationResolver looks up stations by catalog UUID. The catalog client
// implements it; tests substitute a fixed set.
type StationResolver interface {
	ByUUID(ctx context.Context, id string) (*catalog.Station, error)
}

// Config configures the playback service.
type Config struct {
	// BaseURL is the externally reachable server root used to build the
	// relay stream URLs handed to speakers, without a trailing slash
	// (for example "http://192.168.1.10:8080"). Speakers fetch relay
	// streams themselves, so localhost is almost never right here.
	BaseURL string

	// CacheTTL is how long probe verdicts are reused. Defaults to
	// DefaultCacheTTL.
	CacheTTL time.Duration

	// StartTimeout bounds how long a relay session may take to confirm
	// its transcoder alive. Zero means the request context is the only
	// bound.
	StartTimeout time.Duration

	// Probe configures the stream prober.
	Probe probe.Config

	// Relay configures the relay session registry. OnSessionEnd is owned
	// by the service; anything set here is replaced.
	Relay relay.RegistryConfig
}

// PlaybackService decides how each station reaches each speaker. It probes
// sources through the verdict cache, hands compatible URLs to the speaker
// directly, runs relay sessions for everything else, and journals every
// finished session.
type PlaybackService struct {
	verdictRepo repository.ProbeVerdictRepository
	journalRepo repository.SessionRecordRepository
	stations    StationResolver
	speakers    speaker.Controller
	prober      *probe.Prober
	registry    *relay.Registry
	logger      *slog.Logger

	baseURL      string
	cacheTTL     time.Duration
	startTimeout time.Duration

	// names remembers the display name each live session was started
	// with so the journal can record it after the session ends.
	namesMu sync.Mutex
	names   map[uuid.UUID]string
}

// NewPlaybackService creates the playback service and starts its relay
// registry.
func NewPlaybackService(
	verdictRepo repository.ProbeVerdictRepository,
	journalRepo repository.SessionRecordRepository,
	stations StationResolver,
	speakers speaker.Controller,
	cfg Config,
) *PlaybackService {
	s := &PlaybackService{
		verdictRepo:  verdictRepo,
		journalRepo:  journalRepo,
		stations:     stations,
		speakers:     speakers,
		logger:       slog.Default().With(slog.String("component", "playback")),
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		cacheTTL:     cfg.CacheTTL,
		startTimeout: cfg.StartTimeout,
		names:        make(map[uuid.UUID]string),
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = DefaultCacheTTL
	}

	s.prober = probe.New(cfg.Probe)

	relayCfg := cfg.Relay
	relayCfg.OnSessionEnd = s.journalSession
	s.registry = relay.NewRegistry(relayCfg)

	return s
}

// WithLogger sets the logger for the service.
func (s *PlaybackService) WithLogger(logger *slog.Logger) *PlaybackService {
	s.logger = logger
	return s
}

// Close tears down the relay registry and every live transcoder.
func (s *PlaybackService) Close() {
	s.registry.Close()
}

// PlayRequest identifies what to play. StationUUID, when set, is resolved
// through the catalog and takes precedence over URL. Name is optional
// display metadata shown on the speaker and recorded in the journal.
type PlayRequest struct {
	StationUUID string
	URL         string
	Name        string
}

// PlayResult reports where playback was pointed.
type PlayResult struct {
	// PlaybackURL is the URL the speaker was told to play: the station's
	// media URL for direct play, the relay stream endpoint otherwise.
	PlaybackURL string `json:"playback_url"`

	// Relayed reports whether a transcoding relay session backs playback.
	Relayed bool `json:"relayed"`

	// SessionID identifies the relay session when Relayed is true.
	SessionID string `json:"session_id,omitempty"`

	// StationName is the display name playback was started with.
	StationName string `json:"station_name,omitempty"`

	// SourceURL is the upstream station URL the decision was made for.
	SourceURL string `json:"source_url"`
}

// Play starts the given source on a speaker. Compatible sources are handed
// to the speaker directly and create no session; everything else is
// transcoded through a relay session, replacing whatever session the
// device already had. The compatibility verdict comes from the cache when
// fresh, so replaying a known station skips the probe.
func (s *PlaybackService) Play(ctx context.Context, deviceID string, req PlayRequest) (*PlayResult, error) {
	if deviceID == "" {
		return nil, ErrNoDevice
	}

	sourceURL := strings.TrimSpace(req.URL)
	name := strings.TrimSpace(req.Name)

	if id := strings.TrimSpace(req.StationUUID); id != "" {
		station, err := s.stations.ByUUID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolving station %s: %w", id, err)
		}
		sourceURL = station.SourceURL
		if name == "" {
			name = station.Name
		}
	}
	if sourceURL == "" {
		return nil, ErrNoSource
	}

	verdict, err := s.verdictFor(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	if verdict.Compatible {
		return s.playDirect(ctx, deviceID, sourceURL, name, verdict)
	}
	return s.playRelayed(ctx, deviceID, sourceURL, name, verdict)
}

// playDirect points the speaker straight at the station. Any relay session
// the device still holds is released; direct playback must leave zero
// transcoders behind.
func (s *PlaybackService) playDirect(ctx context.Context, deviceID, sourceURL, name string, verdict *models.ProbeVerdict) (*PlayResult, error) {
	playURL := sourceURL
	if verdict.ResolvedURL != "" {
		// The verdict holds for the media URL behind the playlist, not
		// for the playlist document itself.
		playURL = verdict.ResolvedURL
	}

	if err := s.speakers.PlayURI(ctx, deviceID, playURL, name); err != nil {
		return nil, err
	}

	if err := s.registry.Release(deviceID); err != nil {
		s.logger.Warn("Releasing superseded session failed",
			slog.String("device_id", deviceID),
			slog.Any("error", err))
	}

	s.logger.Info("Direct playback started",
		slog.String("device_id", deviceID),
		slog.String("url", playURL),
		slog.String("codec", verdict.Codec))

	return &PlayResult{
		PlaybackURL: playURL,
		SourceURL:   sourceURL,
		StationName: name,
	}, nil
}

// playRelayed runs the station through a transcoding relay session and
// points the speaker at the relay endpoint.
func (s *PlaybackService) playRelayed(ctx context.Context, deviceID, sourceURL, name string, verdict *models.ProbeVerdict) (*PlayResult, error) {
	relaySource := sourceURL
	if verdict.ResolvedURL != "" {
		relaySource = verdict.ResolvedURL
	}

	session, err := s.registry.Acquire(ctx, deviceID, relaySource)
	if err != nil {
		return nil, err
	}
	s.rememberName(session.ID, name)

	startCtx := ctx
	if s.startTimeout > 0 {
		var cancel context.CancelFunc
		startCtx, cancel = context.WithTimeout(ctx, s.startTimeout)
		defer cancel()
	}
	if err := session.Start(startCtx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnplayableSource, err)
	}

	relayURL := s.baseURL + "/stream/" + session.ID.String()

	if err := s.speakers.PlayURI(ctx, deviceID, relayURL, name); err != nil {
		// The transcoder is already running and no speaker will ever pull
		// from it, so tear the session down instead of letting it stall
		// out the grace window.
		if relErr := s.registry.Release(deviceID); relErr != nil {
			s.logger.Warn("Releasing rejected session failed",
				slog.String("device_id", deviceID),
				slog.Any("error", relErr))
		}
		return nil, err
	}

	s.logger.Info("Relayed playback started",
		slog.String("device_id", deviceID),
		slog.String("session_id", session.ID.String()),
		slog.String("source_url", sourceURL))

	return &PlayResult{
		PlaybackURL: relayURL,
		Relayed:     true,
		SessionID:   session.ID.String(),
		SourceURL:   sourceURL,
		StationName: name,
	}, nil
}

// Stop ends playback on a device. The relay session is released first so
// the transcoder dies even when the speaker has dropped off the network
// since play time. Stopping an idle device is not an error.
func (s *PlaybackService) Stop(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return ErrNoDevice
	}

	if err := s.registry.Release(deviceID); err != nil {
		return fmt.Errorf("releasing session for device %s: %w", deviceID, err)
	}

	if err := s.speakers.Transport(ctx, deviceID, speaker.ActionStop); err != nil {
		if errors.Is(err, speaker.ErrControlFault) {
			// Speakers fault the stop when they are already idle.
			s.logger.Debug("Speaker stop fault ignored",
				slog.String("device_id", deviceID),
				slog.Any("error", err))
			return nil
		}
		return err
	}
	return nil
}

// DeviceStatus is the relay-side playback state of one device.
type DeviceStatus struct {
	DeviceID string `json:"device_id"`

	// Active reports whether a live relay session backs the device.
	// Direct playback holds no session and reports inactive here; the
	// speaker itself is the source of truth for what is audible.
	Active bool `json:"active"`

	// RelayURL is the stream endpoint speakers fetch, set while Active.
	RelayURL string `json:"relay_url,omitempty"`

	// Session is the session snapshot, including terminal sessions still
	// within the registry's retention window.
	Session *relay.SessionStats `json:"session,omitempty"`
}

// Status reports the relay session state for a device.
func (s *PlaybackService) Status(deviceID string) *DeviceStatus {
	status := &DeviceStatus{DeviceID: deviceID}

	session, ok := s.registry.Get(deviceID)
	if !ok {
		return status
	}

	stats := session.Stats()
	status.Session = &stats
	status.Active = !stats.State.Terminal()
	if status.Active {
		status.RelayURL = s.baseURL + "/stream/" + stats.ID.String()
	}
	return status
}

// Sessions snapshots every relay session for diagnostics.
func (s *PlaybackService) Sessions() relay.RegistryStats {
	return s.registry.Stats()
}

// Session returns the live session with the given public identifier. The
// stream endpoint uses it to attach the consumer.
func (s *PlaybackService) Session(id uuid.UUID) (*relay.Session, bool) {
	return s.registry.GetByID(id)
}

// History returns the most recent journal entries, newest first.
func (s *PlaybackService) History(ctx context.Context, limit int) ([]*models.SessionRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.journalRepo.ListRecent(ctx, limit)
}

// DeviceHistory returns the most recent journal entries for one device,
// newest first.
func (s *PlaybackService) DeviceHistory(ctx context.Context, deviceID string, limit int) ([]*models.SessionRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.journalRepo.ListByDevice(ctx, deviceID, limit)
}

// OutcomeCounts returns per-outcome journal totals.
func (s *PlaybackService) OutcomeCounts(ctx context.Context) ([]repository.OutcomeCount, error) {
	return s.journalRepo.CountByOutcome(ctx)
}

// verdictFor answers the compatibility question for a source, consulting
// the cache first. Probe failures yield an uncached incompatible verdict;
// a transient blip must not pin the decision for the whole TTL.
func (s *PlaybackService) verdictFor(ctx context.Context, sourceURL string) (*models.ProbeVerdict, error) {
	cached, err := s.verdictRepo.GetByURL(ctx, sourceURL)
	if err != nil {
		s.logger.Warn("Verdict cache read failed",
			slog.String("url", sourceURL),
			slog.Any("error", err))
	}

	now := time.Now()
	if cached != nil && !cached.Expired(now) {
		if err := s.verdictRepo.Touch(ctx, sourceURL); err != nil {
			s.logger.Debug("Verdict touch failed",
				slog.String("url", sourceURL),
				slog.Any("error", err))
		}
		s.logger.Debug("Verdict cache hit",
			slog.String("url", sourceURL),
			slog.Bool("compatible", cached.Compatible))
		return cached, nil
	}

	result, probeErr := s.prober.Probe(ctx, sourceURL)
	if probeErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("Probe failed, relaying",
			slog.String("url", sourceURL),
			slog.Any("error", probeErr))
		return &models.ProbeVerdict{
			SourceURL:  sourceURL,
			Compatible: false,
			CheckedAt:  now,
			ExpiresAt:  now,
		}, nil
	}

	verdict := &models.ProbeVerdict{
		SourceURL:   sourceURL,
		Compatible:  result.Compatible,
		Codec:       result.Codec,
		Container:   result.Container,
		ContentType: result.ContentType,
		CheckedAt:   now,
		ExpiresAt:   now.Add(s.cacheTTL),
	}
	if result.ResolvedURL != sourceURL {
		verdict.ResolvedURL = result.ResolvedURL
	}
	if err := s.verdictRepo.Upsert(ctx, verdict); err != nil {
		s.logger.Warn("Verdict cache write failed",
			slog.String("url", sourceURL),
			slog.Any("error", err))
	}
	return verdict, nil
}

// journalSession records a finished relay session. It runs on the relay's
// end-of-session goroutine, after the terminal transition.
func (s *PlaybackService) journalSession(stats relay.SessionStats) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	endedAt := time.Now()
	if stats.EndedAt != nil {
		endedAt = *stats.EndedAt
	}
	outcome := models.SessionOutcomeStopped
	if stats.State == relay.StateError {
		outcome = models.SessionOutcomeError
	}

	record := &models.SessionRecord{
		SessionID:    stats.ID.String(),
		DeviceID:     stats.DeviceID,
		StationName:  s.takeName(stats.ID),
		SourceURL:    stats.SourceURL,
		Outcome:      outcome,
		Error:        stats.Error,
		BytesRelayed: int64(stats.BytesRelayed),
		StartedAt:    stats.CreatedAt,
		EndedAt:      endedAt,
	}
	if err := s.journalRepo.Create(ctx, record); err != nil {
		s.logger.Error("Session journal write failed",
			slog.String("session_id", record.SessionID),
			slog.Any("error", err))
		return
	}
	s.logger.Debug("Session journaled",
		slog.String("session_id", record.SessionID),
		slog.String("outcome", outcome))
}

func (s *PlaybackService) rememberName(id uuid.UUID, name string) {
	s.namesMu.Lock()
	defer s.namesMu.Unlock()
	s.names[id] = name
}

func (s *PlaybackService) takeName(id uuid.UUID) string {
	s.namesMu.Lock()
	defer s.namesMu.Unlock()
	name := s.names[id]
	delete(s.names, id)
	return name
}
