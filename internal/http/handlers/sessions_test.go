package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/radiarr/internal/relay"
)

// startRelayedPlayback runs one relayed play through the service and
// returns the session ID it created.
func startRelayedPlayback(t *testing.T, fx *playbackFixture) string {
	t.Helper()

	srv := relayAudioServer(t)
	handler := NewPlaybackHandler(fx.playback)

	input := &PlayDeviceInput{DeviceID: "RINCON_KITCHEN"}
	input.Body.URL = srv.URL

	resp, err := handler.Play(context.Background(), input)
	require.NoError(t, err)
	require.True(t, resp.Body.Relayed)
	return resp.Body.SessionID
}

func TestSessionsHandler_List(t *testing.T) {
	fx := newPlaybackFixture(t, newFakeSpeakers(kitchenSpeaker()), newFakeStations(), fakeTranscoder(t))
	handler := NewSessionsHandler(fx.playback)

	resp, err := handler.List(context.Background(), &ListSessionsInput{})
	require.NoError(t, err)
	assert.Zero(t, resp.Body.ActiveSessions)
	assert.Equal(t, relay.DefaultRegistryConfig().MaxSessions, resp.Body.MaxSessions)

	sessionID := startRelayedPlayback(t, fx)

	resp, err = handler.List(context.Background(), &ListSessionsInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Body.ActiveSessions)
	require.Len(t, resp.Body.Sessions, 1)
	assert.Equal(t, sessionID, resp.Body.Sessions[0].ID.String())
	assert.Equal(t, "RINCON_KITCHEN", resp.Body.Sessions[0].DeviceID)
}

func TestSessionsHandler_Get(t *testing.T) {
	fx := newPlaybackFixture(t, newFakeSpeakers(kitchenSpeaker()), newFakeStations(), fakeTranscoder(t))
	handler := NewSessionsHandler(fx.playback)

	sessionID := startRelayedPlayback(t, fx)

	t.Run("found", func(t *testing.T) {
		resp, err := handler.Get(context.Background(), &GetSessionInput{SessionID: sessionID})
		require.NoError(t, err)
		assert.Equal(t, sessionID, resp.Body.ID.String())
		assert.Equal(t, relay.StateTranscoding, resp.Body.State)
		assert.False(t, resp.Body.ConsumerConnected)
	})

	t.Run("invalid id", func(t *testing.T) {
		_, err := handler.Get(context.Background(), &GetSessionInput{SessionID: "not-a-uuid"})
		assertStatus(t, err, http.StatusBadRequest)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := handler.Get(context.Background(), &GetSessionInput{SessionID: uuid.NewString()})
		assertStatus(t, err, http.StatusNotFound)
	})
}
