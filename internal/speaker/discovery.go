package speaker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SSDP discovery parameters.
const (
	// DefaultDiscoveryTimeout is how long discovery waits for responders.
	DefaultDiscoveryTimeout = 3 * time.Second

	ssdpAddress      = "239.255.255.250:1900"
	ssdpSearchTarget = "urn:schemas-upnp-org:device:ZonePlayer:1"
	ssdpMX           = 1
)

// Refresh runs one SSDP discovery pass and merges responders into the
// registry. Static devices are never replaced; rediscovered devices update
// their earlier entries, so address changes after a DHCP move are picked
// up on the next pass.
func (c *Client) Refresh(ctx context.Context) error {
	locations, err := c.search(ctx, c.discoveryTimeout)
	if err != nil {
		return fmt.Errorf("ssdp search: %w", err)
	}

	found := 0
	for _, location := range locations {
		dev, err := c.describeDevice(ctx, location)
		if err != nil {
			c.logger.Warn("Ignoring undescribable device",
				slog.String("location", location),
				slog.String("error", err.Error()))
			continue
		}
		if dev.ID == "" {
			continue
		}
		c.register(dev)
		found++
	}

	c.logger.Info("Speaker discovery finished",
		slog.Int("responders", len(locations)),
		slog.Int("registered", found),
		slog.Int("known", c.deviceCount()))
	return nil
}

// ssdpSearch broadcasts an M-SEARCH for the speakers' device type and
// collects unique description locations until the timeout passes.
func ssdpSearch(ctx context.Context, timeout time.Duration) ([]string, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("opening discovery socket: %w", err)
	}
	defer conn.Close()

	dst, err := net.ResolveUDPAddr("udp4", ssdpAddress)
	if err != nil {
		return nil, fmt.Errorf("resolving multicast address: %w", err)
	}

	request := strings.Join([]string{
		"M-SEARCH * HTTP/1.1",
		"HOST: " + ssdpAddress,
		`MAN: "ssdp:discover"`,
		fmt.Sprintf("MX: %d", ssdpMX),
		"ST: " + ssdpSearchTarget,
		"",
		"",
	}, "\r\n")

	if _, err := conn.WriteTo([]byte(request), dst); err != nil {
		return nil, fmt.Errorf("sending search: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("setting read deadline: %w", err)
	}

	seen := make(map[string]struct{})
	var locations []string
	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			// The read deadline ends collection.
			break
		}
		location := parseSSDPLocation(buf[:n])
		if location == "" {
			continue
		}
		if _, dup := seen[location]; dup {
			continue
		}
		seen[location] = struct{}{}
		locations = append(locations, location)
	}
	return locations, nil
}

// parseSSDPLocation extracts the LOCATION header from an M-SEARCH
// response datagram. Anything unparsable is ignored; the network is full
// of devices answering multicast badly.
func parseSSDPLocation(raw []byte) string {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	return strings.TrimSpace(resp.Header.Get("Location"))
}

// deviceDescription is the subset of a UPnP device description the
// registry needs.
type deviceDescription struct {
	Device struct {
		FriendlyName string `xml:"friendlyName"`
		ModelName    string `xml:"modelName"`
		RoomName     string `xml:"roomName"`
		UDN          string `xml:"UDN"`
	} `xml:"device"`
}

// describeDevice fetches and parses a responder's description document.
func (c *Client) describeDevice(ctx context.Context, location string) (Device, error) {
	resp, err := c.http.Get(ctx, location)
	if err != nil {
		return Device{}, fmt.Errorf("fetching description: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Device{}, fmt.Errorf("description status %d", resp.StatusCode)
	}

	var desc deviceDescription
	if err := xml.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return Device{}, fmt.Errorf("parsing description: %w", err)
	}

	u, err := url.Parse(location)
	if err != nil || u.Host == "" {
		return Device{}, fmt.Errorf("unusable description location %q", location)
	}

	// Room name beats the friendly name, which embeds the IP on some
	// firmware versions.
	name := desc.Device.RoomName
	if name == "" {
		name = desc.Device.FriendlyName
	}

	return Device{
		ID:      strings.TrimPrefix(desc.Device.UDN, "uuid:"),
		Name:    name,
		Address: u.Host,
		Model:   desc.Device.ModelName,
	}, nil
}
