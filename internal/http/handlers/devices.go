package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/radiarr/internal/speaker"
)

// DeviceRefresher re-runs speaker discovery on demand.
type DeviceRefresher interface {
	Refresh(ctx context.Context) error
}

// DevicesHandler handles speaker fleet endpoints.
type DevicesHandler struct {
	speakers  speaker.Controller
	refresher DeviceRefresher
	logger    *slog.Logger
}

// NewDevicesHandler creates a new devices handler.
func NewDevicesHandler(speakers speaker.Controller) *DevicesHandler {
	return &DevicesHandler{
		speakers: speakers,
		logger:   slog.Default(),
	}
}

// WithRefresher enables the rediscovery endpoint.
func (h *DevicesHandler) WithRefresher(r DeviceRefresher) *DevicesHandler {
	h.refresher = r
	return h
}

// WithLogger sets the logger.
func (h *DevicesHandler) WithLogger(logger *slog.Logger) *DevicesHandler {
	h.logger = logger
	return h
}

// Register registers the device routes with the API.
func (h *DevicesHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listDevices",
		Method:      "GET",
		Path:        "/api/v1/devices",
		Summary:     "List speakers",
		Description: "Returns every known speaker, both discovered and statically configured",
		Tags:        []string{"Devices"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "refreshDevices",
		Method:      "POST",
		Path:        "/api/v1/devices/refresh",
		Summary:     "Rediscover speakers",
		Description: "Re-runs SSDP discovery and returns the updated speaker list",
		Tags:        []string{"Devices"},
	}, h.Refresh)

	huma.Register(api, huma.Operation{
		OperationID: "getDeviceTrack",
		Method:      "GET",
		Path:        "/api/v1/devices/{deviceID}/track",
		Summary:     "Get current track",
		Description: "Returns what the speaker is playing right now, with volume and transport state",
		Tags:        []string{"Devices"},
	}, h.Track)

	huma.Register(api, huma.Operation{
		OperationID:   "setDeviceVolume",
		Method:        "POST",
		Path:          "/api/v1/devices/{deviceID}/volume",
		Summary:       "Set speaker volume",
		Tags:          []string{"Devices"},
		DefaultStatus: http.StatusNoContent,
	}, h.SetVolume)

	huma.Register(api, huma.Operation{
		OperationID:   "setDeviceMute",
		Method:        "POST",
		Path:          "/api/v1/devices/{deviceID}/mute",
		Summary:       "Mute or unmute a speaker",
		Tags:          []string{"Devices"},
		DefaultStatus: http.StatusNoContent,
	}, h.SetMute)

	huma.Register(api, huma.Operation{
		OperationID:   "deviceTransport",
		Method:        "POST",
		Path:          "/api/v1/devices/{deviceID}/transport",
		Summary:       "Send a transport command",
		Description:   "Sends a plain transport command to the speaker. Stopping through this endpoint does not release relay sessions; use the playback stop endpoint for that.",
		Tags:          []string{"Devices"},
		DefaultStatus: http.StatusNoContent,
	}, h.Transport)
}

// ListDevicesInput is the input for listing devices.
type ListDevicesInput struct{}

// ListDevicesOutput is the output for listing devices.
type ListDevicesOutput struct {
	Body struct {
		Devices []speaker.Device `json:"devices"`
	}
}

// List returns every known speaker.
func (h *DevicesHandler) List(ctx context.Context, input *ListDevicesInput) (*ListDevicesOutput, error) {
	devices, err := h.speakers.ListDevices(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list devices", err)
	}

	resp := &ListDevicesOutput{}
	resp.Body.Devices = make([]speaker.Device, 0, len(devices))
	resp.Body.Devices = append(resp.Body.Devices, devices...)

	return resp, nil
}

// RefreshDevicesInput is the input for rediscovering devices.
type RefreshDevicesInput struct{}

// RefreshDevicesOutput is the output for rediscovering devices.
type RefreshDevicesOutput struct {
	Body struct {
		Devices []speaker.Device `json:"devices"`
	}
}

// Refresh re-runs speaker discovery and returns the updated list.
func (h *DevicesHandler) Refresh(ctx context.Context, input *RefreshDevicesInput) (*RefreshDevicesOutput, error) {
	if h.refresher == nil {
		return nil, huma.Error503ServiceUnavailable("speaker discovery is disabled")
	}

	if err := h.refresher.Refresh(ctx); err != nil {
		return nil, huma.Error500InternalServerError("speaker discovery failed", err)
	}

	devices, err := h.speakers.ListDevices(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list devices", err)
	}

	resp := &RefreshDevicesOutput{}
	resp.Body.Devices = make([]speaker.Device, 0, len(devices))
	resp.Body.Devices = append(resp.Body.Devices, devices...)

	return resp, nil
}

// DeviceTrackInput is the input for the current track endpoint.
type DeviceTrackInput struct {
	DeviceID string `path:"deviceID" doc:"Speaker device ID"`
}

// DeviceTrackOutput is the output for the current track endpoint.
type DeviceTrackOutput struct {
	Body speaker.TrackInfo
}

// Track returns what the speaker is playing right now.
func (h *DevicesHandler) Track(ctx context.Context, input *DeviceTrackInput) (*DeviceTrackOutput, error) {
	info, err := h.speakers.TrackInfo(ctx, input.DeviceID)
	if err != nil {
		return nil, speakerError(input.DeviceID, err)
	}

	return &DeviceTrackOutput{Body: *info}, nil
}

// SetVolumeInput is the input for setting speaker volume.
type SetVolumeInput struct {
	DeviceID string `path:"deviceID" doc:"Speaker device ID"`
	Body     struct {
		Level int `json:"level" minimum:"0" maximum:"100" doc:"Volume level, 0 to 100"`
	}
}

// SetVolumeOutput is the output for setting speaker volume.
type SetVolumeOutput struct{}

// SetVolume sets the speaker's master volume.
func (h *DevicesHandler) SetVolume(ctx context.Context, input *SetVolumeInput) (*SetVolumeOutput, error) {
	if err := h.speakers.SetVolume(ctx, input.DeviceID, input.Body.Level); err != nil {
		return nil, speakerError(input.DeviceID, err)
	}
	return &SetVolumeOutput{}, nil
}

// SetMuteInput is the input for muting a speaker.
type SetMuteInput struct {
	DeviceID string `path:"deviceID" doc:"Speaker device ID"`
	Body     struct {
		Muted bool `json:"muted" doc:"True to mute, false to unmute"`
	}
}

// SetMuteOutput is the output for muting a speaker.
type SetMuteOutput struct{}

// SetMute mutes or unmutes the speaker's master channel.
func (h *DevicesHandler) SetMute(ctx context.Context, input *SetMuteInput) (*SetMuteOutput, error) {
	if err := h.speakers.SetMute(ctx, input.DeviceID, input.Body.Muted); err != nil {
		return nil, speakerError(input.DeviceID, err)
	}
	return &SetMuteOutput{}, nil
}

// DeviceTransportInput is the input for the transport endpoint.
type DeviceTransportInput struct {
	DeviceID string `path:"deviceID" doc:"Speaker device ID"`
	Body     struct {
		Action string `json:"action" enum:"play,pause,stop,next,previous" doc:"Transport command"`
	}
}

// DeviceTransportOutput is the output for the transport endpoint.
type DeviceTransportOutput struct{}

// Transport sends a plain transport command to the speaker.
func (h *DevicesHandler) Transport(ctx context.Context, input *DeviceTransportInput) (*DeviceTransportOutput, error) {
	action := speaker.TransportAction(input.Body.Action)
	if err := h.speakers.Transport(ctx, input.DeviceID, action); err != nil {
		return nil, speakerError(input.DeviceID, err)
	}
	return &DeviceTransportOutput{}, nil
}

// speakerError maps speaker control failures onto API errors. A UPnP fault
// answered by the device itself is a bad gateway, not a server error.
func speakerError(deviceID string, err error) error {
	switch {
	case errors.Is(err, speaker.ErrDeviceNotFound):
		return huma.Error404NotFound(fmt.Sprintf("device %s not found", deviceID))
	case errors.Is(err, speaker.ErrInvalidVolume), errors.Is(err, speaker.ErrInvalidAction):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, speaker.ErrControlFault):
		return huma.Error502BadGateway(err.Error())
	}
	return huma.Error500InternalServerError("speaker control failed", err)
}
