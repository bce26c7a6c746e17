package playlist

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

type xspfDocument struct {
	XMLName xml.Name    `xml:"playlist"`
	Tracks  []xspfTrack `xml:"trackList>track"`
}

type xspfTrack struct {
	Location string `xml:"location"`
	Title    string `xml:"title"`
}

// parseXSPF parses an XSPF (XML Shareable Playlist Format) document.
func parseXSPF(data []byte, baseURL string) ([]Entry, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose
	decoder.Entity = xml.HTMLEntity

	var doc xspfDocument
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing xspf: %w", err)
	}

	entries := make([]Entry, 0, len(doc.Tracks))
	for _, track := range doc.Tracks {
		location := strings.TrimSpace(track.Location)
		if location == "" {
			continue
		}
		entries = append(entries, Entry{
			URL:   resolveRef(baseURL, location),
			Title: strings.TrimSpace(track.Title),
		})
	}
	return entries, nil
}
