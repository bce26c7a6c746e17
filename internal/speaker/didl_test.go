package speaker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDIDLMetadata(t *testing.T) {
	doc := didlMetadata("http://radio.example.com/live?a=1&b=2", "Rock & Roll <FM>")

	assert.Contains(t, doc, "<dc:title>Rock &amp; Roll &lt;FM&gt;</dc:title>")
	assert.Contains(t, doc, "object.item.audioItem.audioBroadcast")
	assert.Contains(t, doc, `protocolInfo="http-get:*:audio/mpeg:*"`)
	assert.Contains(t, doc, "http://radio.example.com/live?a=1&amp;b=2")
	assert.NotContains(t, doc, "b=2</res", "raw ampersand must not survive escaping")
}

func TestDIDLMetadata_DefaultTitle(t *testing.T) {
	doc := didlMetadata("http://radio.example.com/live", "  ")
	assert.Contains(t, doc, "<dc:title>"+DefaultStreamTitle+"</dc:title>")
}

func TestDIDLMetadata_RoundTrip(t *testing.T) {
	doc := didlMetadata("http://radio.example.com/live", `Jazz "89.1" & More`)

	item, err := parseDIDL(doc)
	require.NoError(t, err)
	assert.Equal(t, `Jazz "89.1" & More`, item.Title)
	assert.Equal(t, "object.item.audioItem.audioBroadcast", item.Class)
}

func TestParseDIDL(t *testing.T) {
	meta := `<DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/" xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"><item id="-1" parentID="-1" restricted="true"><dc:title>News Hour</dc:title><dc:creator>World Service</dc:creator><upnp:albumArtURI>http://art.example.com/a.png</upnp:albumArtURI></item></DIDL-Lite>`

	item, err := parseDIDL(meta)
	require.NoError(t, err)
	assert.Equal(t, "News Hour", item.Title)
	assert.Equal(t, "World Service", item.Creator)
	assert.Equal(t, "http://art.example.com/a.png", item.AlbumArtURI)
}

func TestParseDIDL_Errors(t *testing.T) {
	_, err := parseDIDL("<DIDL-Lite></DIDL-Lite>")
	assert.Error(t, err)

	_, err = parseDIDL("not xml at all <<<")
	assert.Error(t, err)
}
