// Package probe classifies station stream URLs as directly playable by a
// networked speaker or in need of transcoding. A probe is a bounded-time,
// bounded-byte partial fetch: the declared content type is advisory, the
// sniffed byte signature wins when they disagree, and any failure to reach
// a verdict is treated as incompatible so playback falls back to the relay
// instead of handing the speaker a URL it cannot play.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jmylchreest/radiarr/pkg/playlist"
)

// Probe errors.
var (
	// ErrProbeTimeout is returned when the source does not respond within
	// the probe deadline.
	ErrProbeTimeout = errors.New("probe timed out")

	// ErrProbeUnreachable is returned when the source cannot be fetched at
	// all (DNS failure, refused connection, malformed response).
	ErrProbeUnreachable = errors.New("source unreachable")
)

// Defaults for probe configuration.
const (
	// DefaultTimeout bounds the whole probe, playlist hop included.
	DefaultTimeout = 3 * time.Second

	// DefaultMaxSniffBytes is how much of the stream body is read for
	// byte-signature detection.
	DefaultMaxSniffBytes = 4096

	// DefaultUserAgent mimics a speaker so servers answer the probe the
	// same way they will answer the device.
	DefaultUserAgent = "Linux UPnP/1.0 Sonos/99.9 (Probe)"

	// maxPlaylistBytes caps playlist document reads.
	maxPlaylistBytes = 256 * 1024

	// maxPlaylistHops is the number of playlist indirections followed.
	// Anything nested deeper is left to the relay.
	maxPlaylistHops = 1

	// printableThreshold is the printable-byte ratio above which a body
	// with no recognizable signature is treated as a disguised playlist.
	printableThreshold = 0.9
)

// acceptedContentTypes are the types a speaker plays directly.
var acceptedContentTypes = map[string]bool{
	"audio/mpeg":   true,
	"audio/mp3":    true,
	"audio/x-mpeg": true,
	"audio/aac":    true,
	"audio/aacp":   true,
	"audio/mp4":    true,
	"audio/ogg":    true,
	"audio/vorbis": true,
}

// Result is the verdict for one source URL.
type Result struct {
	// Compatible reports whether a speaker can play ResolvedURL directly.
	Compatible bool

	// Codec is the detected audio codec ("mp3", "aac", "vorbis", ...),
	// empty when undetermined.
	Codec string

	// Container is the detected container format, empty when undetermined.
	Container string

	// ContentType is the normalized declared content type of the final
	// response.
	ContentType string

	// ResolvedURL is the URL the verdict applies to: the final URL after
	// redirects and at most one playlist indirection.
	ResolvedURL string

	// Reasons collects human-readable classification steps, in order.
	Reasons []string
}

func (r *Result) addReason(format string, args ...any) {
	r.Reasons = append(r.Reasons, fmt.Sprintf(format, args...))
}

// Config configures a Prober.
type Config struct {
	// Timeout bounds the whole probe. Defaults to DefaultTimeout.
	Timeout time.Duration

	// MaxSniffBytes is the byte-signature read limit. Defaults to
	// DefaultMaxSniffBytes.
	MaxSniffBytes int

	// UserAgent overrides the speaker-mimicking User-Agent.
	UserAgent string

	// Client is the HTTP client used for fetches. A default client is
	// created when nil.
	Client *http.Client

	// Logger receives probe debug logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Prober classifies stream URLs.
type Prober struct {
	client        *http.Client
	logger        *slog.Logger
	timeout       time.Duration
	maxSniffBytes int
	userAgent     string
}

// New creates a Prober.
func New(cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxSniffBytes <= 0 {
		cfg.MaxSniffBytes = DefaultMaxSniffBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Prober{
		client:        cfg.Client,
		logger:        cfg.Logger,
		timeout:       cfg.Timeout,
		maxSniffBytes: cfg.MaxSniffBytes,
		userAgent:     cfg.UserAgent,
	}
}

// Probe fetches the first bytes of sourceURL and classifies it. It returns
// ErrProbeTimeout or ErrProbeUnreachable when the source cannot be fetched;
// callers treat those the same as an incompatible verdict.
func (p *Prober) Probe(ctx context.Context, sourceURL string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	result := &Result{ResolvedURL: sourceURL}
	if err := p.probe(ctx, sourceURL, 0, result); err != nil {
		p.logger.Debug("probe failed",
			slog.String("url", sourceURL),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err),
		)
		return nil, err
	}

	p.logger.Debug("probe complete",
		slog.String("url", sourceURL),
		slog.String("resolved_url", result.ResolvedURL),
		slog.Bool("compatible", result.Compatible),
		slog.String("codec", result.Codec),
		slog.String("container", result.Container),
		slog.Duration("duration", time.Since(start)),
		slog.Any("reasons", result.Reasons),
	)
	return result, nil
}

func (p *Prober) probe(ctx context.Context, sourceURL string, hop int, result *Result) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProbeUnreachable, err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		if hop > 0 {
			// The original URL is still relayable even when a playlist
			// candidate is not fetchable.
			result.addReason("playlist candidate unreachable: %v", err)
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrProbeTimeout, sourceURL)
		}
		return fmt.Errorf("%w: %v", ErrProbeUnreachable, err)
	}
	defer resp.Body.Close()

	finalURL := sourceURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	result.ResolvedURL = finalURL

	rawContentType := resp.Header.Get("Content-Type")
	contentType := normalizeContentType(rawContentType)
	result.ContentType = contentType

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.addReason("HTTP %d", resp.StatusCode)
		return nil
	}

	suspectedPlaylist := playlist.IsPlaylistURL(finalURL) ||
		playlist.IsPlaylistContentType(contentType) ||
		contentType == "text/html" ||
		contentType == "application/xhtml+xml"

	readLimit := p.maxSniffBytes
	if suspectedPlaylist {
		readLimit = maxPlaylistBytes
	}
	chunk, readErr := io.ReadAll(io.LimitReader(resp.Body, int64(readLimit)))
	if len(chunk) == 0 {
		if readErr != nil {
			if hop > 0 {
				result.addReason("playlist candidate returned no data: %v", readErr)
				return nil
			}
			if errors.Is(readErr, context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", ErrProbeTimeout, sourceURL)
			}
			return fmt.Errorf("%w: %v", ErrProbeUnreachable, readErr)
		}
		result.addReason("no data")
		return nil
	}

	if suspectedPlaylist {
		result.addReason("URL or content type indicates a playlist")
		return p.followPlaylist(ctx, chunk, finalURL, rawContentType, hop, result)
	}

	if sig, ok := sniffSignature(chunk); ok {
		result.Codec = sig.codec
		result.Container = sig.container
		result.Compatible = sig.compatible
		result.addReason("%s", sig.reason)
		return nil
	}

	if printableRatio(chunk) > printableThreshold {
		result.addReason("body is mostly text")
		return p.followPlaylist(ctx, chunk, finalURL, rawContentType, hop, result)
	}

	if acceptedContentTypes[contentType] || strings.Contains(contentType, "audio") {
		result.Compatible = true
		result.Codec = codecFromContentType(contentType)
		result.addReason("declared content type %s accepted", contentType)
		return nil
	}

	result.addReason("unsupported content type %q", contentType)
	return nil
}

// followPlaylist resolves a playlist document and re-probes its first entry.
func (p *Prober) followPlaylist(ctx context.Context, data []byte, baseURL, contentType string, hop int, result *Result) error {
	if hop >= maxPlaylistHops {
		result.addReason("nested playlist beyond %d hop(s)", maxPlaylistHops)
		return nil
	}

	entries, err := playlist.Resolve(data, baseURL, contentType)
	if err != nil {
		if errors.Is(err, playlist.ErrLiveManifest) {
			result.addReason("live HLS media manifest")
		} else {
			result.addReason("playlist resolution failed: %v", err)
		}
		return nil
	}

	first := entries[0]
	result.addReason("playlist resolved to %s", first.URL)
	return p.probe(ctx, first.URL, hop+1, result)
}

// printableRatio is the fraction of bytes in the printable ASCII range.
func printableRatio(chunk []byte) float64 {
	if len(chunk) == 0 {
		return 0
	}
	printable := 0
	for _, b := range chunk {
		if b >= 32 && b <= 126 {
			printable++
		}
	}
	return float64(printable) / float64(len(chunk))
}

func codecFromContentType(contentType string) string {
	switch contentType {
	case "audio/mpeg", "audio/mp3", "audio/x-mpeg":
		return "mp3"
	case "audio/aac", "audio/aacp":
		return "aac"
	case "audio/mp4":
		return "aac"
	case "audio/ogg", "audio/vorbis":
		return "vorbis"
	default:
		return ""
	}
}

func normalizeContentType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
