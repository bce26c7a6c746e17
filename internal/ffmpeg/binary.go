// Package ffmpeg provides FFmpeg binary detection and a supervised command
// wrapper for the audio transcode pipeline.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MP3Encoder is the encoder the relay target format depends on.
const MP3Encoder = "libmp3lame"

// BinaryInfo contains information about the detected FFmpeg installation.
type BinaryInfo struct {
	FFmpegPath    string   `json:"ffmpeg_path"`
	Version       string   `json:"version"`
	MajorVersion  int      `json:"major_version"`
	MinorVersion  int      `json:"minor_version"`
	Configuration string   `json:"configuration,omitempty"`
	Encoders      []string `json:"encoders,omitempty"`
}

// HasEncoder returns true if the encoder is available.
func (info *BinaryInfo) HasEncoder(name string) bool {
	return slices.Contains(info.Encoders, name)
}

// BinaryDetector handles detection and caching of the FFmpeg binary.
type BinaryDetector struct {
	mu           sync.RWMutex
	info         *BinaryInfo
	lastDetected time.Time
	cacheTTL     time.Duration
	binaryPath   string
}

// NewBinaryDetector creates a new binary detector.
func NewBinaryDetector() *BinaryDetector {
	return &BinaryDetector{
		cacheTTL: 5 * time.Minute,
	}
}

// WithCacheTTL sets the cache TTL for binary detection.
func (d *BinaryDetector) WithCacheTTL(ttl time.Duration) *BinaryDetector {
	d.cacheTTL = ttl
	return d
}

// WithBinaryPath pins the FFmpeg binary to an explicit path, skipping the
// env/cwd/PATH search.
func (d *BinaryDetector) WithBinaryPath(path string) *BinaryDetector {
	d.binaryPath = path
	return d
}

// Detect locates the FFmpeg binary and queries its version and encoders.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		info := d.info
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double-check after acquiring write lock
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	info, err := d.detect(ctx)
	if err != nil {
		return nil, err
	}

	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

// Clear clears the cached binary information.
func (d *BinaryDetector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = nil
}

// detect performs the actual binary detection.
func (d *BinaryDetector) detect(ctx context.Context) (*BinaryInfo, error) {
	var path string
	var err error
	if d.binaryPath != "" {
		if !isExecutable(d.binaryPath) {
			return nil, fmt.Errorf("ffmpeg not found: configured path %s is not executable", d.binaryPath)
		}
		path = d.binaryPath
	} else {
		// Search order: RADIARR_FFMPEG_BINARY env var -> ./ffmpeg -> PATH
		path, err = findBinary("ffmpeg", "RADIARR_FFMPEG_BINARY")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found: %w", err)
		}
	}

	info := &BinaryInfo{FFmpegPath: path}

	version, err := d.getVersion(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("getting ffmpeg version: %w", err)
	}
	info.Version = version.Full
	info.MajorVersion = version.Major
	info.MinorVersion = version.Minor
	info.Configuration = version.Configuration

	// The encoder list is advisory. Startup warns when the MP3 encoder is
	// missing but a failed listing does not block detection.
	if encoders, err := d.getEncoders(ctx, path); err == nil {
		info.Encoders = encoders
	}

	return info, nil
}

// findBinary locates a binary by environment variable override, current
// directory, then PATH.
func findBinary(name, envVar string) (string, error) {
	if envVar != "" {
		if envPath := os.Getenv(envVar); envPath != "" {
			if isExecutable(envPath) {
				return envPath, nil
			}
		}
	}

	localPath := "./" + name
	if isExecutable(localPath) {
		return localPath, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("binary %s not found", name)
}

// isExecutable checks if a file exists and is executable by the current user.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}

// versionInfo holds parsed version information.
type versionInfo struct {
	Full          string
	Major         int
	Minor         int
	Configuration string
}

// getVersion extracts version information from ffmpeg.
func (d *BinaryDetector) getVersion(ctx context.Context, ffmpegPath string) (*versionInfo, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	info := &versionInfo{}
	versionRe := regexp.MustCompile(`^n?(\d+)\.(\d+)`)

	for _, line := range strings.Split(string(output), "\n") {
		switch {
		case strings.HasPrefix(line, "ffmpeg version"):
			// "ffmpeg version 6.0 Copyright..." or "ffmpeg version n6.0-2-g..."
			parts := strings.Fields(line)
			if len(parts) >= 3 {
				info.Full = parts[2]
				if matches := versionRe.FindStringSubmatch(parts[2]); len(matches) >= 3 {
					info.Major, _ = strconv.Atoi(matches[1])
					info.Minor, _ = strconv.Atoi(matches[2])
				}
			}
		case strings.HasPrefix(line, "configuration:"):
			info.Configuration = strings.TrimPrefix(line, "configuration: ")
		}
	}

	if info.Full == "" {
		return nil, fmt.Errorf("failed to parse ffmpeg version")
	}

	return info, nil
}

// getEncoders retrieves available encoders.
func (d *BinaryDetector) getEncoders(ctx context.Context, ffmpegPath string) ([]string, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, "-encoders", "-hide_banner")
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var encoders []string
	inEncoderList := false

	for _, line := range strings.Split(string(output), "\n") {
		if strings.Contains(line, "------") {
			inEncoderList = true
			continue
		}
		if !inEncoderList {
			continue
		}

		// Format: A....D encoder_name description
		line = strings.TrimLeft(line, " ")
		if len(line) < 8 {
			continue
		}
		if line[0] != 'V' && line[0] != 'A' && line[0] != 'S' {
			continue
		}

		rest := strings.TrimSpace(line[6:])
		parts := strings.Fields(rest)
		if len(parts) >= 1 && parts[0] != "" {
			encoders = append(encoders, parts[0])
		}
	}

	return encoders, nil
}
