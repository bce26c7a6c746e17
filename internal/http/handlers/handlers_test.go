package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/radiarr/internal/catalog"
	"github.com/jmylchreest/radiarr/internal/ffmpeg"
	"github.com/jmylchreest/radiarr/internal/models"
	"github.com/jmylchreest/radiarr/internal/probe"
	"github.com/jmylchreest/radiarr/internal/relay"
	"github.com/jmylchreest/radiarr/internal/repository"
	"github.com/jmylchreest/radiarr/internal/service"
	"github.com/jmylchreest/radiarr/internal/speaker"
)

const testBaseURL = "http://radiarr.test:8080"

// fakeSpeakers implements speaker.Controller for testing.
type fakeSpeakers struct {
	devices []speaker.Device
	track   speaker.TrackInfo
	err     error

	played     []playedURI
	volumes    map[string]int
	muted      map[string]bool
	transports []speaker.TransportAction
}

type playedURI struct {
	deviceID string
	uri      string
	title    string
}

func newFakeSpeakers(devices ...speaker.Device) *fakeSpeakers {
	return &fakeSpeakers{
		devices: devices,
		volumes: make(map[string]int),
		muted:   make(map[string]bool),
	}
}

func (f *fakeSpeakers) has(deviceID string) bool {
	for _, d := range f.devices {
		if d.ID == deviceID {
			return true
		}
	}
	return false
}

func (f *fakeSpeakers) ListDevices(ctx context.Context) ([]speaker.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.devices, nil
}

func (f *fakeSpeakers) SetVolume(ctx context.Context, deviceID string, level int) error {
	if f.err != nil {
		return f.err
	}
	if level < 0 || level > speaker.MaxVolume {
		return fmt.Errorf("%w: %d", speaker.ErrInvalidVolume, level)
	}
	if !f.has(deviceID) {
		return fmt.Errorf("%w: %s", speaker.ErrDeviceNotFound, deviceID)
	}
	f.volumes[deviceID] = level
	return nil
}

func (f *fakeSpeakers) SetMute(ctx context.Context, deviceID string, muted bool) error {
	if f.err != nil {
		return f.err
	}
	if !f.has(deviceID) {
		return fmt.Errorf("%w: %s", speaker.ErrDeviceNotFound, deviceID)
	}
	f.muted[deviceID] = muted
	return nil
}

func (f *fakeSpeakers) Transport(ctx context.Context, deviceID string, action speaker.TransportAction) error {
	if f.err != nil {
		return f.err
	}
	if !action.Valid() {
		return fmt.Errorf("%w: %s", speaker.ErrInvalidAction, action)
	}
	if !f.has(deviceID) {
		return fmt.Errorf("%w: %s", speaker.ErrDeviceNotFound, deviceID)
	}
	f.transports = append(f.transports, action)
	return nil
}

func (f *fakeSpeakers) PlayURI(ctx context.Context, deviceID, uri, title string) error {
	if f.err != nil {
		return f.err
	}
	if !f.has(deviceID) {
		return fmt.Errorf("%w: %s", speaker.ErrDeviceNotFound, deviceID)
	}
	f.played = append(f.played, playedURI{deviceID: deviceID, uri: uri, title: title})
	return nil
}

func (f *fakeSpeakers) TrackInfo(ctx context.Context, deviceID string) (*speaker.TrackInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	if !f.has(deviceID) {
		return nil, fmt.Errorf("%w: %s", speaker.ErrDeviceNotFound, deviceID)
	}
	track := f.track
	return &track, nil
}

func (f *fakeSpeakers) lastPlayed(t *testing.T) playedURI {
	t.Helper()
	require.NotEmpty(t, f.played, "no PlayURI call recorded")
	return f.played[len(f.played)-1]
}

// fakeStations implements StationDirectory and service.StationResolver for
// testing.
type fakeStations struct {
	stations map[string]catalog.Station
	results  []catalog.Station
	err      error
}

func newFakeStations(stations ...catalog.Station) *fakeStations {
	f := &fakeStations{
		stations: make(map[string]catalog.Station),
		results:  stations,
	}
	for _, s := range stations {
		f.stations[s.ID] = s
	}
	return f
}

func (f *fakeStations) Search(ctx context.Context, query string, limit int) ([]catalog.Station, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > len(f.results) {
		limit = len(f.results)
	}
	return f.results[:limit], nil
}

func (f *fakeStations) ByUUID(ctx context.Context, id string) (*catalog.Station, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.stations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrStationNotFound, id)
	}
	return &s, nil
}

// fakeTranscoder installs a shell script that answers the binary detector
// like a real FFmpeg and emits audio forever for stream invocations.
func fakeTranscoder(t *testing.T) *ffmpeg.BinaryDetector {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	script := `#!/bin/sh
case "$1" in
-version)
  echo "ffmpeg version 6.1.1"
  echo "configuration: --enable-libmp3lame"
  ;;
-encoders)
  echo "Encoders:"
  echo " ------"
  echo " A..... libmp3lame           MP3 (MPEG audio layer 3)"
  ;;
*)
  while :; do printf 'RADIO'; sleep 0.05; done
  ;;
esac
`
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("RADIARR_FFMPEG_BINARY", path)
	return ffmpeg.NewBinaryDetector()
}

// missingTranscoder makes binary detection fail, so every relay spawn
// fails. PATH is emptied too; the machine running the tests may well have a
// real ffmpeg installed.
func missingTranscoder(t *testing.T) *ffmpeg.BinaryDetector {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RADIARR_FFMPEG_BINARY", filepath.Join(dir, "no-such-ffmpeg"))
	t.Setenv("PATH", dir)
	return ffmpeg.NewBinaryDetector()
}

// directAudioServer serves a stream the probe classifies as speaker
// compatible: declared MPEG audio with an ID3v2 tag up front.
func directAudioServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		body := append([]byte("ID3"), make([]byte, 125)...)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// relayAudioServer serves a stream the probe cannot classify: an opaque
// binary body under a content type no speaker plays. Playback has to go
// through the transcoding relay.
func relayAudioServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(make([]byte, 128))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setupHandlerTestDB opens an in-memory database with the playback schema.
// The pool is pinned to one connection so every goroutine sees the same
// in-memory database.
func setupHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.ProbeVerdict{}, &models.SessionRecord{}))
	return db
}

// playbackFixture wires a real playback service over fakes: in-memory
// repositories, a fake speaker fleet, a fake station directory and the fake
// transcoder script.
type playbackFixture struct {
	playback *service.PlaybackService
	speakers *fakeSpeakers
	stations *fakeStations
	journal  repository.SessionRecordRepository
}

func newPlaybackFixture(t *testing.T, speakers *fakeSpeakers, stations *fakeStations, detector *ffmpeg.BinaryDetector) *playbackFixture {
	t.Helper()

	db := setupHandlerTestDB(t)

	relayCfg := relay.DefaultRegistryConfig()
	relayCfg.Detector = detector
	relayCfg.KillGrace = 2 * time.Second
	relayCfg.JanitorInterval = 25 * time.Millisecond

	journal := repository.NewSessionRecordRepository(db)
	playback := service.NewPlaybackService(
		repository.NewProbeVerdictRepository(db),
		journal,
		stations,
		speakers,
		service.Config{
			BaseURL: testBaseURL,
			Probe:   probe.Config{Timeout: 2 * time.Second},
			Relay:   relayCfg,
		},
	)
	t.Cleanup(playback.Close)

	return &playbackFixture{
		playback: playback,
		speakers: speakers,
		stations: stations,
		journal:  journal,
	}
}

func kitchenSpeaker() speaker.Device {
	return speaker.Device{
		ID:      "RINCON_KITCHEN",
		Name:    "Kitchen",
		Address: "192.168.1.50:1400",
		Model:   "One",
	}
}

// assertStatus checks the HTTP status a handler error carries.
func assertStatus(t *testing.T, err error, want int) {
	t.Helper()
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, want, se.GetStatus())
}
