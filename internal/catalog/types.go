package catalog

import "strings"

// Station is one catalog entry, normalized for playback.
type Station struct {
	// ID is the catalog's stable station identifier.
	ID string `json:"id"`

	// Name is the station display name.
	Name string `json:"name"`

	// SourceURL is the stream URL handed to the probe and player.
	SourceURL string `json:"source_url"`

	// DeclaredMIME is the content type implied by the catalog's codec
	// label. It is advisory only; the probe decides compatibility from
	// the stream itself.
	DeclaredMIME string `json:"declared_mime,omitempty"`

	// Tags is the catalog's comma separated tag list, passed through as
	// received.
	Tags string `json:"tags,omitempty"`

	// Homepage is the station website, when the catalog knows it.
	Homepage string `json:"homepage,omitempty"`

	// Favicon is the station artwork URL, when the catalog knows it.
	Favicon string `json:"favicon,omitempty"`

	// Bitrate is the declared bitrate in kbit/s, zero when unknown.
	Bitrate int `json:"bitrate,omitempty"`

	// Codec is the catalog's codec label, for example "MP3" or "AAC+".
	Codec string `json:"codec,omitempty"`

	// Country is the station's home country name.
	Country string `json:"country,omitempty"`
}

// station is the radio-browser wire format for a single station entry.
// Only the fields the application consumes are decoded.
type station struct {
	StationUUID string `json:"stationuuid"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	URLResolved string `json:"url_resolved"`
	Homepage    string `json:"homepage"`
	Favicon     string `json:"favicon"`
	Tags        string `json:"tags"`
	Country     string `json:"country"`
	Codec       string `json:"codec"`
	Bitrate     int    `json:"bitrate"`
}

// normalize converts a wire entry to the playback shape. The resolved URL
// is preferred over the raw one, which may point at a playlist rather than
// the stream itself.
func (s station) normalize() Station {
	sourceURL := strings.TrimSpace(s.URLResolved)
	if sourceURL == "" {
		sourceURL = strings.TrimSpace(s.URL)
	}
	return Station{
		ID:           s.StationUUID,
		Name:         strings.TrimSpace(s.Name),
		SourceURL:    sourceURL,
		DeclaredMIME: mimeForCodec(s.Codec),
		Tags:         s.Tags,
		Homepage:     s.Homepage,
		Favicon:      s.Favicon,
		Bitrate:      s.Bitrate,
		Codec:        s.Codec,
		Country:      s.Country,
	}
}

// normalizeAll converts wire entries, dropping any without a usable URL.
func normalizeAll(entries []station) []Station {
	out := make([]Station, 0, len(entries))
	for _, e := range entries {
		st := e.normalize()
		if st.SourceURL == "" {
			continue
		}
		out = append(out, st)
	}
	return out
}

// mimeForCodec maps the catalog's codec labels to MIME types. Labels it
// does not recognize map to an empty string, leaving the verdict to the
// probe.
func mimeForCodec(codec string) string {
	switch strings.ToUpper(strings.TrimSpace(codec)) {
	case "MP3":
		return "audio/mpeg"
	case "AAC":
		return "audio/aac"
	case "AAC+":
		return "audio/aacp"
	case "OGG", "VORBIS":
		return "audio/ogg"
	case "FLAC":
		return "audio/flac"
	default:
		return ""
	}
}
