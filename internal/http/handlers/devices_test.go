package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/radiarr/internal/speaker"
)

// fakeRefresher implements DeviceRefresher for testing.
type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestDevicesHandler_List(t *testing.T) {
	speakers := newFakeSpeakers(
		kitchenSpeaker(),
		speaker.Device{ID: "RINCON_BEDROOM", Name: "Bedroom", Address: "192.168.1.51:1400"},
	)
	handler := NewDevicesHandler(speakers)

	resp, err := handler.List(context.Background(), &ListDevicesInput{})
	require.NoError(t, err)
	require.Len(t, resp.Body.Devices, 2)
	assert.Equal(t, "Kitchen", resp.Body.Devices[0].Name)
}

func TestDevicesHandler_List_Empty(t *testing.T) {
	handler := NewDevicesHandler(newFakeSpeakers())

	resp, err := handler.List(context.Background(), &ListDevicesInput{})
	require.NoError(t, err)
	assert.NotNil(t, resp.Body.Devices)
	assert.Empty(t, resp.Body.Devices)
}

func TestDevicesHandler_Refresh(t *testing.T) {
	speakers := newFakeSpeakers(kitchenSpeaker())

	t.Run("runs discovery and returns the list", func(t *testing.T) {
		refresher := &fakeRefresher{}
		handler := NewDevicesHandler(speakers).WithRefresher(refresher)

		resp, err := handler.Refresh(context.Background(), &RefreshDevicesInput{})
		require.NoError(t, err)
		assert.Equal(t, 1, refresher.calls)
		assert.Len(t, resp.Body.Devices, 1)
	})

	t.Run("unavailable without a refresher", func(t *testing.T) {
		handler := NewDevicesHandler(speakers)

		_, err := handler.Refresh(context.Background(), &RefreshDevicesInput{})
		assertStatus(t, err, http.StatusServiceUnavailable)
	})

	t.Run("discovery failure", func(t *testing.T) {
		refresher := &fakeRefresher{err: errors.New("multicast send failed")}
		handler := NewDevicesHandler(speakers).WithRefresher(refresher)

		_, err := handler.Refresh(context.Background(), &RefreshDevicesInput{})
		assertStatus(t, err, http.StatusInternalServerError)
	})
}

func TestDevicesHandler_Track(t *testing.T) {
	speakers := newFakeSpeakers(kitchenSpeaker())
	speakers.track = speaker.TrackInfo{
		Title:          "Morning Show",
		Artist:         "Radio Paradise",
		TransportState: "PLAYING",
		Volume:         28,
	}
	handler := NewDevicesHandler(speakers)

	t.Run("found", func(t *testing.T) {
		resp, err := handler.Track(context.Background(), &DeviceTrackInput{DeviceID: "RINCON_KITCHEN"})
		require.NoError(t, err)
		assert.Equal(t, "Morning Show", resp.Body.Title)
		assert.Equal(t, 28, resp.Body.Volume)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := handler.Track(context.Background(), &DeviceTrackInput{DeviceID: "RINCON_GARAGE"})
		assertStatus(t, err, http.StatusNotFound)
	})
}

func TestDevicesHandler_SetVolume(t *testing.T) {
	speakers := newFakeSpeakers(kitchenSpeaker())
	handler := NewDevicesHandler(speakers)

	input := &SetVolumeInput{DeviceID: "RINCON_KITCHEN"}
	input.Body.Level = 35

	_, err := handler.SetVolume(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 35, speakers.volumes["RINCON_KITCHEN"])

	t.Run("out of range", func(t *testing.T) {
		input := &SetVolumeInput{DeviceID: "RINCON_KITCHEN"}
		input.Body.Level = 150

		_, err := handler.SetVolume(context.Background(), input)
		assertStatus(t, err, http.StatusBadRequest)
	})
}

func TestDevicesHandler_SetMute(t *testing.T) {
	speakers := newFakeSpeakers(kitchenSpeaker())
	handler := NewDevicesHandler(speakers)

	input := &SetMuteInput{DeviceID: "RINCON_KITCHEN"}
	input.Body.Muted = true

	_, err := handler.SetMute(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, speakers.muted["RINCON_KITCHEN"])
}

func TestDevicesHandler_Transport(t *testing.T) {
	speakers := newFakeSpeakers(kitchenSpeaker())
	handler := NewDevicesHandler(speakers)

	input := &DeviceTransportInput{DeviceID: "RINCON_KITCHEN"}
	input.Body.Action = "pause"

	_, err := handler.Transport(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, speakers.transports, 1)
	assert.Equal(t, speaker.ActionPause, speakers.transports[0])

	t.Run("unsupported action", func(t *testing.T) {
		input := &DeviceTransportInput{DeviceID: "RINCON_KITCHEN"}
		input.Body.Action = "rewind"

		_, err := handler.Transport(context.Background(), input)
		assertStatus(t, err, http.StatusBadRequest)
	})
}

func TestDevicesHandler_ControlFault(t *testing.T) {
	speakers := newFakeSpeakers(kitchenSpeaker())
	speakers.err = speaker.ErrControlFault
	handler := NewDevicesHandler(speakers)

	input := &SetVolumeInput{DeviceID: "RINCON_KITCHEN"}
	input.Body.Level = 10

	_, err := handler.SetVolume(context.Background(), input)
	assertStatus(t, err, http.StatusBadGateway)
}
