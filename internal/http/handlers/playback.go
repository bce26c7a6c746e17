// Package handlers provides HTTP API handlers for radiarr.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/radiarr/internal/catalog"
	"github.com/jmylchreest/radiarr/internal/relay"
	"github.com/jmylchreest/radiarr/internal/service"
	"github.com/jmylchreest/radiarr/internal/speaker"
)

// PlaybackHandler handles playback control endpoints.
type PlaybackHandler struct {
	playback *service.PlaybackService
	logger   *slog.Logger
}

// NewPlaybackHandler creates a new playback handler.
func NewPlaybackHandler(playback *service.PlaybackService) *PlaybackHandler {
	return &PlaybackHandler{
		playback: playback,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger.
func (h *PlaybackHandler) WithLogger(logger *slog.Logger) *PlaybackHandler {
	h.logger = logger
	return h
}

// Register registers the playback routes with the API.
func (h *PlaybackHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "playDevice",
		Method:      "POST",
		Path:        "/api/v1/playback/{deviceID}/play",
		Summary:     "Start playback on a speaker",
		Description: "Resolves a station or URL, decides between direct playback and transcoded relay, and points the speaker at the result",
		Tags:        []string{"Playback"},
	}, h.Play)

	huma.Register(api, huma.Operation{
		OperationID:   "stopDevice",
		Method:        "POST",
		Path:          "/api/v1/playback/{deviceID}/stop",
		Summary:       "Stop playback on a speaker",
		Description:   "Stops the speaker and tears down any relay session it holds. Stopping an idle device succeeds and does nothing.",
		Tags:          []string{"Playback"},
		DefaultStatus: http.StatusNoContent,
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "getDeviceStatus",
		Method:      "GET",
		Path:        "/api/v1/playback/{deviceID}/status",
		Summary:     "Get playback status for a speaker",
		Description: "Reports whether the speaker has a live relay session and, if so, its state and throughput",
		Tags:        []string{"Playback"},
	}, h.Status)
}

// PlayDeviceInput is the input for starting playback.
type PlayDeviceInput struct {
	DeviceID string `path:"deviceID" doc:"Speaker device ID"`
	Body     struct {
		StationUUID string `json:"station_uuid,omitempty" doc:"Catalog station UUID (takes precedence over url)"`
		URL         string `json:"url,omitempty" doc:"Stream URL (required if station_uuid not provided)" maxLength:"2048"`
		Name        string `json:"name,omitempty" doc:"Display name shown on the speaker" maxLength:"500"`
	}
}

// PlayDeviceOutput is the output for starting playback.
type PlayDeviceOutput struct {
	Body service.PlayResult
}

// Play starts playback on a speaker.
func (h *PlaybackHandler) Play(ctx context.Context, input *PlayDeviceInput) (*PlayDeviceOutput, error) {
	result, err := h.playback.Play(ctx, input.DeviceID, service.PlayRequest{
		StationUUID: input.Body.StationUUID,
		URL:         input.Body.URL,
		Name:        input.Body.Name,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoSource):
			return nil, huma.Error400BadRequest("station_uuid or url is required")
		case errors.Is(err, catalog.ErrStationNotFound):
			return nil, huma.Error404NotFound(err.Error())
		case errors.Is(err, speaker.ErrDeviceNotFound):
			return nil, huma.Error404NotFound(fmt.Sprintf("device %s not found", input.DeviceID))
		case errors.Is(err, service.ErrUnplayableSource):
			return nil, huma.Error422UnprocessableEntity(err.Error())
		case errors.Is(err, relay.ErrTooManySessions):
			return nil, huma.Error503ServiceUnavailable(err.Error())
		case errors.Is(err, catalog.ErrAllMirrorsFailed):
			return nil, huma.Error502BadGateway(err.Error())
		case errors.Is(err, speaker.ErrControlFault):
			return nil, huma.Error502BadGateway(err.Error())
		}
		return nil, huma.Error500InternalServerError("failed to start playback", err)
	}

	return &PlayDeviceOutput{Body: *result}, nil
}

// StopDeviceInput is the input for stopping playback.
type StopDeviceInput struct {
	DeviceID string `path:"deviceID" doc:"Speaker device ID"`
}

// StopDeviceOutput is the output for stopping playback.
type StopDeviceOutput struct{}

// Stop stops playback and releases the device's relay session.
func (h *PlaybackHandler) Stop(ctx context.Context, input *StopDeviceInput) (*StopDeviceOutput, error) {
	if err := h.playback.Stop(ctx, input.DeviceID); err != nil {
		switch {
		case errors.Is(err, speaker.ErrDeviceNotFound):
			return nil, huma.Error404NotFound(fmt.Sprintf("device %s not found", input.DeviceID))
		case errors.Is(err, speaker.ErrControlFault):
			return nil, huma.Error502BadGateway(err.Error())
		}
		return nil, huma.Error500InternalServerError("failed to stop playback", err)
	}

	return &StopDeviceOutput{}, nil
}

// DeviceStatusInput is the input for the device status endpoint.
type DeviceStatusInput struct {
	DeviceID string `path:"deviceID" doc:"Speaker device ID"`
}

// DeviceStatusOutput is the output for the device status endpoint.
type DeviceStatusOutput struct {
	Body service.DeviceStatus
}

// Status reports whether the device has a live relay session.
func (h *PlaybackHandler) Status(ctx context.Context, input *DeviceStatusInput) (*DeviceStatusOutput, error) {
	return &DeviceStatusOutput{Body: *h.playback.Status(input.DeviceID)}, nil
}
