// Package playlist resolves radio station playlist documents to playable
// stream URLs. Stations frequently publish .m3u/.m3u8/.pls/.asx/.xspf
// wrappers (sometimes mislabeled as text or HTML) around the actual stream;
// this package detects the format, follows compression transparently, and
// extracts the candidate media URLs in document order.
package playlist

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

// Common errors returned by the resolver.
var (
	// ErrNoEntries indicates the document parsed but contained no URLs.
	ErrNoEntries = errors.New("playlist contains no entries")

	// ErrUnknownFormat indicates the document matched no supported format.
	ErrUnknownFormat = errors.New("unknown playlist format")

	// ErrLiveManifest indicates an HLS media playlist: the document is a
	// rolling segment manifest, not a wrapper around a single stream URL.
	// Extracting a segment from it would hand the caller a few seconds of
	// audio, so resolution refuses instead.
	ErrLiveManifest = errors.New("document is a live HLS media manifest")
)

// maxLineLength bounds scanner lines when parsing text playlists.
const maxLineLength = 1024 * 1024

// Format identifies a playlist document format.
type Format int

const (
	FormatUnknown Format = iota
	FormatM3U
	FormatHLS
	FormatPLS
	FormatXSPF
	FormatASX
	FormatHTML
)

func (f Format) String() string {
	switch f {
	case FormatM3U:
		return "m3u"
	case FormatHLS:
		return "hls"
	case FormatPLS:
		return "pls"
	case FormatXSPF:
		return "xspf"
	case FormatASX:
		return "asx"
	case FormatHTML:
		return "html"
	default:
		return "unknown"
	}
}

// Entry is a single media reference extracted from a playlist document.
type Entry struct {
	// URL is the resolved absolute media URL.
	URL string

	// Title is the display title, when the format carries one.
	Title string
}

// Extensions that mark a URL as a playlist rather than a stream.
var playlistExtensions = map[string]Format{
	".m3u":  FormatM3U,
	".m3u8": FormatHLS,
	".pls":  FormatPLS,
	".xspf": FormatXSPF,
	".asx":  FormatASX,
}

// Content types that mark a response as a playlist.
var playlistContentTypes = map[string]Format{
	"audio/x-mpegurl":               FormatM3U,
	"audio/mpegurl":                 FormatM3U,
	"application/x-mpegurl":         FormatHLS,
	"application/vnd.apple.mpegurl": FormatHLS,
	"audio/x-scpls":                 FormatPLS,
	"application/pls+xml":           FormatPLS,
	"application/xspf+xml":          FormatXSPF,
	"video/x-ms-asf":                FormatASX,
	"video/x-ms-asx":                FormatASX,
	"text/html":                     FormatHTML,
}

// IsPlaylistURL reports whether the URL path carries a playlist extension.
func IsPlaylistURL(rawURL string) bool {
	_, ok := playlistExtensions[urlExtension(rawURL)]
	return ok
}

// IsPlaylistContentType reports whether the content type denotes a playlist
// document. The value may include parameters ("audio/x-scpls; charset=utf-8").
func IsPlaylistContentType(contentType string) bool {
	_, ok := playlistContentTypes[normalizeContentType(contentType)]
	return ok
}

// Detect determines the document format from the URL, the content type, and
// the document bytes. Body sniffing wins over declared metadata because
// stations routinely mislabel playlists as text/html or octet-stream.
func Detect(rawURL, contentType string, data []byte) Format {
	if f := sniffFormat(data); f != FormatUnknown {
		return f
	}
	if f, ok := playlistExtensions[urlExtension(rawURL)]; ok {
		return f
	}
	if f, ok := playlistContentTypes[normalizeContentType(contentType)]; ok {
		return f
	}
	return FormatUnknown
}

// sniffFormat inspects leading bytes for format signatures.
func sniffFormat(data []byte) Format {
	head := strings.TrimSpace(string(head512(data)))
	lower := strings.ToLower(head)

	switch {
	case strings.HasPrefix(head, "#EXTM3U"):
		if strings.Contains(head, "#EXT-X-") {
			return FormatHLS
		}
		return FormatM3U
	case strings.HasPrefix(lower, "[playlist]"):
		return FormatPLS
	case strings.Contains(lower, "<asx"):
		return FormatASX
	case strings.Contains(lower, "<playlist") && strings.Contains(lower, "xspf"):
		return FormatXSPF
	case strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype html"):
		return FormatHTML
	}
	return FormatUnknown
}

// Resolve parses the document and returns its media entries in order.
// baseURL anchors relative references; contentType may be empty.
func Resolve(data []byte, baseURL, contentType string) ([]Entry, error) {
	decompressed, err := decompress(data)
	if err != nil {
		return nil, err
	}

	format := Detect(baseURL, contentType, decompressed)

	var entries []Entry
	switch format {
	case FormatM3U:
		entries, err = parseM3U(decompressed, baseURL)
	case FormatHLS:
		entries, err = parseHLS(decompressed, baseURL)
	case FormatPLS:
		entries, err = parsePLS(decompressed, baseURL)
	case FormatXSPF:
		entries, err = parseXSPF(decompressed, baseURL)
	case FormatASX:
		entries, err = parseASX(decompressed, baseURL)
	case FormatHTML:
		entries, err = parseHTMLLinks(decompressed, baseURL)
	default:
		return nil, ErrUnknownFormat
	}
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	return entries, nil
}

// First resolves the document and returns the first media URL.
func First(data []byte, baseURL, contentType string) (string, error) {
	entries, err := Resolve(data, baseURL, contentType)
	if err != nil {
		return "", err
	}
	return entries[0].URL, nil
}

// resolveRef resolves a possibly-relative reference against the base URL.
// Unparseable input is returned as-is.
func resolveRef(baseURL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return ref
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}

// urlExtension returns the lowercased path extension of a URL, ignoring the
// query string.
func urlExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(path.Ext(rawURL))
	}
	return strings.ToLower(path.Ext(u.Path))
}

// normalizeContentType strips parameters and lowercases the media type.
func normalizeContentType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func head512(data []byte) []byte {
	if len(data) > 512 {
		return data[:512]
	}
	return data
}
