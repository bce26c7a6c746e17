package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/radiarr/internal/catalog"
	"github.com/jmylchreest/radiarr/internal/models"
	"github.com/jmylchreest/radiarr/internal/relay"
)

func TestPlaybackHandler_Play_Direct(t *testing.T) {
	srv := directAudioServer(t)
	fx := newPlaybackFixture(t, newFakeSpeakers(kitchenSpeaker()), newFakeStations(), fakeTranscoder(t))
	handler := NewPlaybackHandler(fx.playback)

	input := &PlayDeviceInput{DeviceID: "RINCON_KITCHEN"}
	input.Body.URL = srv.URL
	input.Body.Name = "Jazz FM"

	resp, err := handler.Play(context.Background(), input)
	require.NoError(t, err)

	assert.False(t, resp.Body.Relayed)
	assert.Empty(t, resp.Body.SessionID)
	assert.Equal(t, srv.URL, resp.Body.PlaybackURL)
	assert.Equal(t, "Jazz FM", resp.Body.StationName)

	played := fx.speakers.lastPlayed(t)
	assert.Equal(t, srv.URL, played.uri)
	assert.Equal(t, "Jazz FM", played.title)

	// Direct playback holds no relay session.
	status, err := handler.Status(context.Background(), &DeviceStatusInput{DeviceID: "RINCON_KITCHEN"})
	require.NoError(t, err)
	assert.False(t, status.Body.Active)
	assert.Nil(t, status.Body.Session)
}

func TestPlaybackHandler_Play_Relayed(t *testing.T) {
	srv := relayAudioServer(t)
	fx := newPlaybackFixture(t, newFakeSpeakers(kitchenSpeaker()), newFakeStations(), fakeTranscoder(t))
	handler := NewPlaybackHandler(fx.playback)

	input := &PlayDeviceInput{DeviceID: "RINCON_KITCHEN"}
	input.Body.URL = srv.URL

	resp, err := handler.Play(context.Background(), input)
	require.NoError(t, err)

	assert.True(t, resp.Body.Relayed)
	require.NotEmpty(t, resp.Body.SessionID)
	assert.Equal(t, testBaseURL+"/stream/"+resp.Body.SessionID, resp.Body.PlaybackURL)
	assert.Equal(t, srv.URL, resp.Body.SourceURL)

	// The speaker is pointed at the relay, not at the station.
	assert.Equal(t, resp.Body.PlaybackURL, fx.speakers.lastPlayed(t).uri)

	status, err := handler.Status(context.Background(), &DeviceStatusInput{DeviceID: "RINCON_KITCHEN"})
	require.NoError(t, err)
	assert.True(t, status.Body.Active)
	assert.Equal(t, resp.Body.PlaybackURL, status.Body.RelayURL)
	require.NotNil(t, status.Body.Session)
	assert.Equal(t, relay.StateTranscoding, status.Body.Session.State)
}

func TestPlaybackHandler_Play_ResolvesStation(t *testing.T) {
	srv := directAudioServer(t)
	station := catalog.Station{
		ID:        "9a1b2c3d-0000-0000-0000-000000000001",
		Name:      "Radio Paradise",
		SourceURL: srv.URL,
	}
	fx := newPlaybackFixture(t, newFakeSpeakers(kitchenSpeaker()), newFakeStations(station), fakeTranscoder(t))
	handler := NewPlaybackHandler(fx.playback)

	input := &PlayDeviceInput{DeviceID: "RINCON_KITCHEN"}
	input.Body.StationUUID = station.ID

	resp, err := handler.Play(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, srv.URL, resp.Body.PlaybackURL)
	assert.Equal(t, "Radio Paradise", resp.Body.StationName)
	assert.Equal(t, "Radio Paradise", fx.speakers.lastPlayed(t).title)
}

func TestPlaybackHandler_Play_Errors(t *testing.T) {
	srv := relayAudioServer(t)

	t.Run("no source", func(t *testing.T) {
		fx := newPlaybackFixture(t, newFakeSpeakers(kitchenSpeaker()), newFakeStations(), fakeTranscoder(t))
		handler := NewPlaybackHandler(fx.playback)

		_, err := handler.Play(context.Background(), &PlayDeviceInput{DeviceID: "RINCON_KITCHEN"})
		assertStatus(t, err, http.StatusBadRequest)
	})

	t.Run("unknown station", func(t *testing.T) {
		fx := newPlaybackFixture(t, newFakeSpeakers(kitchenSpeaker()), newFakeStations(), fakeTranscoder(t))
		handler := NewPlaybackHandler(fx.playback)

		input := &PlayDeviceInput{DeviceID: "RINCON_KITCHEN"}
		input.Body.StationUUID = "9a1b2c3d-0000-0000-0000-00000000dead"

		_, err := handler.Play(context.Background(), input)
		assertStatus(t, err, http.StatusNotFound)
	})

	t.Run("unknown device", func(t *testing.T) {
		srv := directAudioServer(t)
		fx := newPlaybackFixture(t, newFakeSpeakers(kitchenSpeaker()), newFakeStations(), fakeTranscoder(t))
		handler := NewPlaybackHandler(fx.playback)

		input := &PlayDeviceInput{DeviceID: "RINCON_ATTIC"}
		input.Body.URL = srv.URL

		_, err := handler.Play(context.Background(), input)
		assertStatus(t, err, http.StatusNotFound)
	})

	t.Run("transcoder missing", func(t *testing.T) {
		fx := newPlaybackFixture(t, newFakeSpeakers(kitchenSpeaker()), newFakeStations(), missingTranscoder(t))
		handler := NewPlaybackHandler(fx.playback)

		input := &PlayDeviceInput{DeviceID: "RINCON_KITCHEN"}
		input.Body.URL = srv.URL

		_, err := handler.Play(context.Background(), input)
		assertStatus(t, err, http.StatusUnprocessableEntity)
	})
}

func TestPlaybackHandler_Stop(t *testing.T) {
	srv := relayAudioServer(t)
	fx := newPlaybackFixture(t, newFakeSpeakers(kitchenSpeaker()), newFakeStations(), fakeTranscoder(t))
	handler := NewPlaybackHandler(fx.playback)

	input := &PlayDeviceInput{DeviceID: "RINCON_KITCHEN"}
	input.Body.URL = srv.URL
	input.Body.Name = "Late Static"

	_, err := handler.Play(context.Background(), input)
	require.NoError(t, err)

	_, err = handler.Stop(context.Background(), &StopDeviceInput{DeviceID: "RINCON_KITCHEN"})
	require.NoError(t, err)

	status, err := handler.Status(context.Background(), &DeviceStatusInput{DeviceID: "RINCON_KITCHEN"})
	require.NoError(t, err)
	assert.False(t, status.Body.Active)

	// The finished session lands in the journal on its own goroutine.
	require.Eventually(t, func() bool {
		records, listErr := fx.journal.ListRecent(context.Background(), 10)
		return listErr == nil && len(records) == 1
	}, 5*time.Second, 50*time.Millisecond)

	records, err := fx.journal.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, models.SessionOutcomeStopped, records[0].Outcome)
	assert.Equal(t, "RINCON_KITCHEN", records[0].DeviceID)
	assert.Equal(t, "Late Static", records[0].StationName)
	assert.True(t, strings.HasPrefix(records[0].SourceURL, "http://"))
}

func TestPlaybackHandler_Stop_IdleDevice(t *testing.T) {
	fx := newPlaybackFixture(t, newFakeSpeakers(kitchenSpeaker()), newFakeStations(), fakeTranscoder(t))
	handler := NewPlaybackHandler(fx.playback)

	_, err := handler.Stop(context.Background(), &StopDeviceInput{DeviceID: "RINCON_KITCHEN"})
	assert.NoError(t, err)
}

func TestPlaybackHandler_Status_UnknownDevice(t *testing.T) {
	fx := newPlaybackFixture(t, newFakeSpeakers(kitchenSpeaker()), newFakeStations(), fakeTranscoder(t))
	handler := NewPlaybackHandler(fx.playback)

	status, err := handler.Status(context.Background(), &DeviceStatusInput{DeviceID: "RINCON_GARAGE"})
	require.NoError(t, err)
	assert.Equal(t, "RINCON_GARAGE", status.Body.DeviceID)
	assert.False(t, status.Body.Active)
	assert.Nil(t, status.Body.Session)
}
