// Package speaker drives playback on UPnP networked speakers.
//
// Speakers expose AVTransport and RenderingControl services over SOAP on a
// fixed control port. The client keeps a registry of devices, fed by static
// configuration and SSDP discovery, and translates playback commands into
// the SOAP actions the hardware understands.
package speaker

import (
	"context"
	"errors"
)

// Errors returned by the package.
var (
	// ErrDeviceNotFound is returned when no registered speaker matches the
	// requested device identifier.
	ErrDeviceNotFound = errors.New("speaker not found")

	// ErrInvalidAction is returned for transport actions the speakers do
	// not support.
	ErrInvalidAction = errors.New("unsupported transport action")

	// ErrInvalidVolume is returned when a volume level falls outside the
	// 0 to 100 range.
	ErrInvalidVolume = errors.New("volume out of range")

	// ErrControlFault is returned when the speaker answers a control
	// action with a UPnP fault.
	ErrControlFault = errors.New("speaker control fault")
)

// MaxVolume is the highest volume level the speakers accept.
const MaxVolume = 100

// Device is one controllable speaker on the network.
type Device struct {
	// ID identifies the device: the UPnP UDN for discovered speakers, or
	// the configured identifier for static entries.
	ID string `json:"id"`

	// Name is the speaker's friendly name, the room name on most models.
	Name string `json:"name"`

	// Address is the host:port of the device's UPnP control endpoint.
	Address string `json:"address"`

	// Model is the reported model name, empty when unknown.
	Model string `json:"model,omitempty"`
}

// TransportAction is a speaker transport command.
type TransportAction string

// Supported transport actions.
const (
	ActionPlay     TransportAction = "play"
	ActionPause    TransportAction = "pause"
	ActionStop     TransportAction = "stop"
	ActionNext     TransportAction = "next"
	ActionPrevious TransportAction = "previous"
)

// upnpAction maps the command to its AVTransport action name.
func (a TransportAction) upnpAction() (string, bool) {
	switch a {
	case ActionPlay:
		return "Play", true
	case ActionPause:
		return "Pause", true
	case ActionStop:
		return "Stop", true
	case ActionNext:
		return "Next", true
	case ActionPrevious:
		return "Previous", true
	default:
		return "", false
	}
}

// Valid reports whether the action is one the speakers support.
func (a TransportAction) Valid() bool {
	_, ok := a.upnpAction()
	return ok
}

// TrackInfo is a snapshot of what a speaker is playing.
type TrackInfo struct {
	Title          string `json:"title"`
	Artist         string `json:"artist"`
	Album          string `json:"album"`
	AlbumArt       string `json:"album_art,omitempty"`
	TransportState string `json:"transport_state,omitempty"`
	Volume         int    `json:"volume"`
	Muted          bool   `json:"muted"`
}

// Controller drives playback on networked speakers. The playback service
// depends on this interface so tests can stand in a fake speaker fleet.
type Controller interface {
	// ListDevices returns the known speakers.
	ListDevices(ctx context.Context) ([]Device, error)

	// SetVolume sets the master volume, 0 to MaxVolume.
	SetVolume(ctx context.Context, deviceID string, level int) error

	// SetMute mutes or unmutes the master channel.
	SetMute(ctx context.Context, deviceID string, muted bool) error

	// Transport sends a plain transport command.
	Transport(ctx context.Context, deviceID string, action TransportAction) error

	// PlayURI points the speaker at a stream URL and starts playback.
	PlayURI(ctx context.Context, deviceID, uri, title string) error

	// TrackInfo reports the speaker's current playback state.
	TrackInfo(ctx context.Context, deviceID string) (*TrackInfo, error)
}
