package speaker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSSDPLocation(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\n" +
		"CACHE-CONTROL: max-age = 1800\r\n" +
		"EXT:\r\n" +
		"LOCATION: http://192.168.1.9:1400/xml/device_description.xml\r\n" +
		"ST: urn:schemas-upnp-org:device:ZonePlayer:1\r\n" +
		"USN: uuid:RINCON_ABC::urn:schemas-upnp-org:device:ZonePlayer:1\r\n" +
		"\r\n")

	assert.Equal(t, "http://192.168.1.9:1400/xml/device_description.xml", parseSSDPLocation(raw))
}

func TestParseSSDPLocation_Garbage(t *testing.T) {
	assert.Empty(t, parseSSDPLocation([]byte("NOTIFY * HTTP/1.1\r\n\r\n")))
	assert.Empty(t, parseSSDPLocation([]byte("complete nonsense")))
	assert.Empty(t, parseSSDPLocation(nil))
}

func descriptionServer(t *testing.T, udn, room, model string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<root xmlns="urn:schemas-upnp-org:device-1-0"><device><friendlyName>10.0.0.2 - Speaker</friendlyName><roomName>%s</roomName><modelName>%s</modelName><UDN>uuid:%s</UDN></device></root>`, room, model, udn)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClient_DescribeDevice(t *testing.T) {
	server := descriptionServer(t, "RINCON_KITCHEN01", "Kitchen", "Play:5")
	c := NewClient(WithDiscovery(false))

	dev, err := c.describeDevice(context.Background(), server.URL+"/xml/device_description.xml")
	require.NoError(t, err)

	assert.Equal(t, "RINCON_KITCHEN01", dev.ID)
	assert.Equal(t, "Kitchen", dev.Name)
	assert.Equal(t, "Play:5", dev.Model)
	assert.Equal(t, server.Listener.Addr().String(), dev.Address)
}

func TestClient_DescribeDevice_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(WithDiscovery(false))
	_, err := c.describeDevice(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestClient_Refresh_RegistersResponders(t *testing.T) {
	server := descriptionServer(t, "RINCON_OFFICE01", "Office", "One")

	c := NewClient(WithDiscovery(true))
	c.search = func(ctx context.Context, timeout time.Duration) ([]string, error) {
		return []string{server.URL}, nil
	}

	require.NoError(t, c.Refresh(context.Background()))

	devices, err := c.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "RINCON_OFFICE01", devices[0].ID)
}

func TestClient_Refresh_KeepsStaticEntries(t *testing.T) {
	server := descriptionServer(t, "RINCON_STATIC01", "Rediscovered Name", "One")

	c := NewClient(
		WithDiscovery(true),
		WithStaticDevices([]Device{{ID: "RINCON_STATIC01", Name: "Configured Name", Address: "192.168.1.50"}}),
	)
	c.search = func(ctx context.Context, timeout time.Duration) ([]string, error) {
		return []string{server.URL}, nil
	}

	require.NoError(t, c.Refresh(context.Background()))

	devices, err := c.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "Configured Name", devices[0].Name)
	assert.Equal(t, "192.168.1.50:1400", devices[0].Address)
}

func TestClient_Refresh_SearchError(t *testing.T) {
	c := NewClient(WithDiscovery(true))
	c.search = func(ctx context.Context, timeout time.Duration) ([]string, error) {
		return nil, errors.New("network unreachable")
	}

	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ssdp search")
}

func TestClient_Refresh_SkipsUndescribable(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not a description document")
	}))
	defer broken.Close()
	good := descriptionServer(t, "RINCON_GOOD01", "Good", "One")

	c := NewClient(WithDiscovery(true))
	c.search = func(ctx context.Context, timeout time.Duration) ([]string, error) {
		return []string{broken.URL, good.URL}, nil
	}

	require.NoError(t, c.Refresh(context.Background()))

	devices, err := c.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "RINCON_GOOD01", devices[0].ID)
}
