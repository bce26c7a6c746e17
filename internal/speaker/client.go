package speaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/radiarr/internal/version"
	"github.com/jmylchreest/radiarr/pkg/httpclient"
)

// Default configuration values.
const (
	// DefaultTimeout bounds a single control round trip. Speakers answer
	// on the local network, so anything slower is effectively down.
	DefaultTimeout = 5 * time.Second

	// DefaultControlPort is the UPnP control port the speakers listen on.
	DefaultControlPort = "1400"
)

// UPnP service identifiers and their control endpoints.
const (
	serviceAVTransport      = "urn:schemas-upnp-org:service:AVTransport:1"
	serviceRenderingControl = "urn:schemas-upnp-org:service:RenderingControl:1"

	pathAVTransport      = "/MediaRenderer/AVTransport/Control"
	pathRenderingControl = "/MediaRenderer/RenderingControl/Control"
)

// channelMaster is the rendering channel all volume and mute actions target.
const channelMaster = "Master"

// searchFunc performs SSDP discovery and returns description locations.
type searchFunc func(ctx context.Context, timeout time.Duration) ([]string, error)

// Client is a UPnP control point implementing Controller.
type Client struct {
	http             *httpclient.Client
	logger           *slog.Logger
	timeout          time.Duration
	discovery        bool
	discoveryTimeout time.Duration
	search           searchFunc

	mu        sync.RWMutex
	devices   map[string]Device
	staticIDs map[string]struct{}
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// NewClient creates a speaker control client. Without options it starts
// with an empty registry and discovery enabled.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:          DefaultTimeout,
		discovery:        true,
		discoveryTimeout: DefaultDiscoveryTimeout,
		search:           ssdpSearch,
		devices:          make(map[string]Device),
		staticIDs:        make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With(slog.String("component", "speaker"))

	if c.http == nil {
		cfg := httpclient.DefaultConfig()
		cfg.Timeout = c.timeout
		cfg.UserAgent = version.UserAgent()
		cfg.Logger = c.logger
		cfg.RetryAttempts = 1
		// Speakers answer SOAP faults as HTTP 500; those must reach the
		// caller instead of tripping the breaker.
		cfg.AcceptableStatusCodes = httpclient.MustParseStatusCodes("200-299,500")
		c.http = httpclient.New(cfg)
	}

	return c
}

// WithStaticDevices registers speakers that are always known, discovery
// aside. Addresses without a port get the default control port.
func WithStaticDevices(devices []Device) ClientOption {
	return func(c *Client) {
		for _, dev := range devices {
			if dev.ID == "" || dev.Address == "" {
				continue
			}
			dev.Address = ensureControlPort(dev.Address)
			c.devices[dev.ID] = dev
			c.staticIDs[dev.ID] = struct{}{}
		}
	}
}

// WithDiscovery enables or disables SSDP discovery.
func WithDiscovery(enabled bool) ClientOption {
	return func(c *Client) {
		c.discovery = enabled
	}
}

// WithDiscoveryTimeout sets how long discovery waits for responders.
func WithDiscoveryTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.discoveryTimeout = timeout
		}
	}
}

// WithTimeout sets the control round trip timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// ListDevices returns the known speakers sorted by name. An empty registry
// triggers one discovery pass first when discovery is enabled, so a fresh
// start without static configuration still finds the fleet.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	if c.discovery && c.deviceCount() == 0 {
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn("Speaker discovery failed", slog.String("error", err.Error()))
		}
	}

	c.mu.RLock()
	devices := make([]Device, 0, len(c.devices))
	for _, dev := range c.devices {
		devices = append(devices, dev)
	}
	c.mu.RUnlock()

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
	return devices, nil
}

// SetVolume sets the master volume on a speaker.
func (c *Client) SetVolume(ctx context.Context, deviceID string, level int) error {
	if level < 0 || level > MaxVolume {
		return fmt.Errorf("%w: %d", ErrInvalidVolume, level)
	}
	dev, err := c.lookup(deviceID)
	if err != nil {
		return err
	}
	_, err = c.soapCall(ctx, dev.Address, pathRenderingControl, serviceRenderingControl, "SetVolume", []soapArg{
		{"InstanceID", "0"},
		{"Channel", channelMaster},
		{"DesiredVolume", strconv.Itoa(level)},
	})
	return err
}

// SetMute mutes or unmutes a speaker's master channel.
func (c *Client) SetMute(ctx context.Context, deviceID string, muted bool) error {
	dev, err := c.lookup(deviceID)
	if err != nil {
		return err
	}
	desired := "0"
	if muted {
		desired = "1"
	}
	_, err = c.soapCall(ctx, dev.Address, pathRenderingControl, serviceRenderingControl, "SetMute", []soapArg{
		{"InstanceID", "0"},
		{"Channel", channelMaster},
		{"DesiredMute", desired},
	})
	return err
}

// Transport sends a plain transport command to a speaker.
func (c *Client) Transport(ctx context.Context, deviceID string, action TransportAction) error {
	name, ok := action.upnpAction()
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	dev, err := c.lookup(deviceID)
	if err != nil {
		return err
	}
	args := []soapArg{{"InstanceID", "0"}}
	if action == ActionPlay {
		args = append(args, soapArg{"Speed", "1"})
	}
	_, err = c.soapCall(ctx, dev.Address, pathAVTransport, serviceAVTransport, name, args)
	return err
}

// PlayURI points a speaker at the given stream URL and starts playback.
// The URI is wrapped in broadcast metadata; without it most firmware
// rejects the transport URI with UPnP error 714.
func (c *Client) PlayURI(ctx context.Context, deviceID, uri, title string) error {
	dev, err := c.lookup(deviceID)
	if err != nil {
		return err
	}

	// Stop whatever is playing first. A fault here just means the
	// speaker was already idle.
	if _, err := c.soapCall(ctx, dev.Address, pathAVTransport, serviceAVTransport, "Stop", []soapArg{{"InstanceID", "0"}}); err != nil && !errors.Is(err, ErrControlFault) {
		return fmt.Errorf("stopping current playback: %w", err)
	}

	if _, err := c.soapCall(ctx, dev.Address, pathAVTransport, serviceAVTransport, "SetAVTransportURI", []soapArg{
		{"InstanceID", "0"},
		{"CurrentURI", uri},
		{"CurrentURIMetaData", didlMetadata(uri, title)},
	}); err != nil {
		return fmt.Errorf("setting transport uri: %w", err)
	}

	if _, err := c.soapCall(ctx, dev.Address, pathAVTransport, serviceAVTransport, "Play", []soapArg{
		{"InstanceID", "0"},
		{"Speed", "1"},
	}); err != nil {
		return fmt.Errorf("starting playback: %w", err)
	}

	c.logger.Info("Playback started",
		slog.String("device_id", deviceID),
		slog.String("uri", uri))
	return nil
}

// TrackInfo reports a speaker's current playback state.
func (c *Client) TrackInfo(ctx context.Context, deviceID string) (*TrackInfo, error) {
	dev, err := c.lookup(deviceID)
	if err != nil {
		return nil, err
	}

	info := &TrackInfo{}

	// Transport state is informational; a fault here should not hide the
	// rest of the snapshot.
	if vals, err := c.soapCall(ctx, dev.Address, pathAVTransport, serviceAVTransport, "GetTransportInfo", []soapArg{{"InstanceID", "0"}}); err == nil {
		info.TransportState = vals["CurrentTransportState"]
	}

	vals, err := c.soapCall(ctx, dev.Address, pathAVTransport, serviceAVTransport, "GetPositionInfo", []soapArg{{"InstanceID", "0"}})
	if err != nil {
		return nil, fmt.Errorf("reading position info: %w", err)
	}
	if meta := vals["TrackMetaData"]; meta != "" && meta != "NOT_IMPLEMENTED" {
		if item, err := parseDIDL(meta); err == nil {
			info.Title = item.Title
			info.Artist = item.Creator
			info.Album = item.Album
			info.AlbumArt = absoluteArtURI(dev.Address, item.AlbumArtURI)
		}
	}

	volVals, err := c.soapCall(ctx, dev.Address, pathRenderingControl, serviceRenderingControl, "GetVolume", []soapArg{
		{"InstanceID", "0"},
		{"Channel", channelMaster},
	})
	if err != nil {
		return nil, fmt.Errorf("reading volume: %w", err)
	}
	info.Volume, _ = strconv.Atoi(volVals["CurrentVolume"])

	muteVals, err := c.soapCall(ctx, dev.Address, pathRenderingControl, serviceRenderingControl, "GetMute", []soapArg{
		{"InstanceID", "0"},
		{"Channel", channelMaster},
	})
	if err != nil {
		return nil, fmt.Errorf("reading mute state: %w", err)
	}
	info.Muted = muteVals["CurrentMute"] == "1"

	return info, nil
}

// lookup resolves a device identifier against the registry.
func (c *Client) lookup(deviceID string) (Device, error) {
	c.mu.RLock()
	dev, ok := c.devices[deviceID]
	c.mu.RUnlock()
	if !ok {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return dev, nil
}

// register adds a discovered device. Static entries keep their configured
// name and address even when discovery reports the same identifier.
func (c *Client) register(dev Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, static := c.staticIDs[dev.ID]; static {
		return
	}
	c.devices[dev.ID] = dev
}

func (c *Client) deviceCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.devices)
}

// ensureControlPort appends the default control port when the address has
// none.
func ensureControlPort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, DefaultControlPort)
}

// absoluteArtURI resolves the relative artwork paths speakers hand out
// against the device's own endpoint.
func absoluteArtURI(address, artURI string) string {
	if artURI == "" || strings.Contains(artURI, "://") {
		return artURI
	}
	if !strings.HasPrefix(artURI, "/") {
		artURI = "/" + artURI
	}
	return "http://" + address + artURI
}
