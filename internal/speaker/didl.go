package speaker

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// DefaultStreamTitle is used when a playback request carries no title.
const DefaultStreamTitle = "Radio Stream"

// broadcastProtocolInfo describes the stream to the speaker. The relay
// always serves MPEG audio, and direct streams are only handed over after
// the probe accepted them, so one protocol entry covers both paths.
const broadcastProtocolInfo = "http-get:*:audio/mpeg:*"

const didlTemplate = `<?xml version="1.0"?>` +
	`<DIDL-Lite xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/" xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/">` +
	`<item id="0" parentID="-1" restricted="true">` +
	`<dc:title>%s</dc:title>` +
	`<upnp:class>object.item.audioItem.audioBroadcast</upnp:class>` +
	`<res protocolInfo="%s">%s</res>` +
	`</item></DIDL-Lite>`

// didlMetadata renders the broadcast metadata document for a stream URL.
func didlMetadata(uri, title string) string {
	if strings.TrimSpace(title) == "" {
		title = DefaultStreamTitle
	}
	return fmt.Sprintf(didlTemplate, xmlEscape(title), broadcastProtocolInfo, xmlEscape(uri))
}

// didlItem is the subset of a metadata item the track snapshot reports.
type didlItem struct {
	Title       string `xml:"title"`
	Creator     string `xml:"creator"`
	Album       string `xml:"album"`
	AlbumArtURI string `xml:"albumArtURI"`
	Class       string `xml:"class"`
}

// parseDIDL pulls the first item out of a metadata document.
func parseDIDL(metadata string) (*didlItem, error) {
	var doc struct {
		Items []didlItem `xml:"item"`
	}
	if err := xml.Unmarshal([]byte(metadata), &doc); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}
	if len(doc.Items) == 0 {
		return nil, errors.New("metadata contains no items")
	}
	return &doc.Items[0], nil
}
