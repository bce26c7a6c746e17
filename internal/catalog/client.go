// Package catalog queries the radio-browser.info station directory.
//
// radio-browser is a community maintained index of internet radio stations
// served by several public mirrors. The client tries each configured mirror
// in order and keeps a named circuit breaker per mirror, so a dead mirror
// costs one fast failure instead of a full timeout on every search.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/radiarr/internal/version"
	"github.com/jmylchreest/radiarr/pkg/httpclient"
)

// Default configuration values.
const (
	DefaultTimeout = 8 * time.Second
	DefaultLimit   = 32

	// API endpoint paths.
	pathSearch   = "/json/stations/search"
	pathTopClick = "/json/stations/topclick"
	pathByUUID   = "/json/stations/byuuid"

	// Query parameter names.
	paramName  = "name"
	paramLimit = "limit"

	maxErrorBodyReadSize = 1024
)

// DefaultMirrors lists the public radio-browser mirrors, tried in order.
var DefaultMirrors = []string{
	"https://de1.api.radio-browser.info",
	"https://de2.api.radio-browser.info",
	"https://fi1.api.radio-browser.info",
}

// ErrAllMirrorsFailed is returned when every configured mirror failed or
// had an open circuit breaker.
var ErrAllMirrorsFailed = errors.New("all catalog mirrors failed")

// ErrStationNotFound is returned when a lookup by station identifier
// matches nothing.
var ErrStationNotFound = errors.New("station not found in catalog")

// Client is a radio-browser catalog client with mirror failover.
type Client struct {
	mirrors      []string
	userAgent    string
	timeout      time.Duration
	defaultLimit int
	logger       *slog.Logger

	breakers *httpclient.CircuitBreakerManager
	clients  map[string]*httpclient.Client
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// NewClient creates a catalog client over the given mirrors, or
// DefaultMirrors when none are configured.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		mirrors:      DefaultMirrors,
		userAgent:    version.UserAgent(),
		timeout:      DefaultTimeout,
		defaultLimit: DefaultLimit,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With(slog.String("component", "catalog"))

	if c.breakers == nil {
		c.breakers = httpclient.NewCircuitBreakerManager(
			httpclient.DefaultCircuitThreshold,
			httpclient.DefaultCircuitTimeout,
			httpclient.DefaultCircuitHalfOpenMax,
		).WithLogger(c.logger)
	}

	mirrors := make([]string, 0, len(c.mirrors))
	for _, m := range c.mirrors {
		mirrors = append(mirrors, strings.TrimSuffix(m, "/"))
	}
	c.mirrors = mirrors

	c.clients = make(map[string]*httpclient.Client, len(c.mirrors))
	for _, mirror := range c.mirrors {
		cfg := httpclient.DefaultConfig()
		cfg.Timeout = c.timeout
		cfg.UserAgent = c.userAgent
		cfg.Logger = c.logger
		// Failover to the next mirror is the retry strategy; retrying a
		// sick mirror in place only delays it.
		cfg.RetryAttempts = 0
		c.clients[mirror] = httpclient.NewWithBreaker(cfg, c.breakers.GetOrCreate(breakerName(mirror)))
	}

	return c
}

// WithMirrors sets the mirror base URLs, tried in the order given.
func WithMirrors(mirrors []string) ClientOption {
	return func(c *Client) {
		if len(mirrors) > 0 {
			c.mirrors = mirrors
		}
	}
}

// WithDefaultLimit sets the result cap used when a search does not name
// its own limit.
func WithDefaultLimit(limit int) ClientOption {
	return func(c *Client) {
		if limit > 0 {
			c.defaultLimit = limit
		}
	}
}

// WithTimeout sets the per-request timeout applied to each mirror attempt.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBreakerManager shares an externally owned circuit breaker manager,
// letting mirror breaker state show up in application health output.
func WithBreakerManager(m *httpclient.CircuitBreakerManager) ClientOption {
	return func(c *Client) {
		c.breakers = m
	}
}

// Search queries the catalog for stations matching the given name. An
// empty query returns the most clicked stations instead. Results are
// capped at limit; values below one fall back to the configured default.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Station, error) {
	if limit < 1 {
		limit = c.defaultLimit
	}

	requestPath := searchPath(query, limit)

	var entries []station
	err := c.forEachMirror(ctx, func(mirror string) error {
		var page []station
		if err := c.doRequest(ctx, mirror, requestPath, &page); err != nil {
			return err
		}
		entries = page
		return nil
	})
	if err != nil {
		return nil, err
	}

	return normalizeAll(entries), nil
}

// ByUUID fetches a single station by its catalog identifier.
func (c *Client) ByUUID(ctx context.Context, id string) (*Station, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrStationNotFound
	}

	requestPath := pathByUUID + "/" + url.PathEscape(id)

	var entries []station
	err := c.forEachMirror(ctx, func(mirror string) error {
		var page []station
		if err := c.doRequest(ctx, mirror, requestPath, &page); err != nil {
			return err
		}
		entries = page
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrStationNotFound, id)
	}

	st := entries[0].normalize()
	return &st, nil
}

// Mirrors returns the configured mirror base URLs in failover order.
func (c *Client) Mirrors() []string {
	out := make([]string, len(c.mirrors))
	copy(out, c.mirrors)
	return out
}

// BreakerStats reports the state of each mirror's circuit breaker.
func (c *Client) BreakerStats() map[string]httpclient.CircuitBreakerStats {
	return c.breakers.GetAllStats()
}

// forEachMirror runs fn against each mirror in order until one succeeds.
// A mirror whose circuit breaker is open fails without a round trip, so
// the loop moves on almost immediately.
func (c *Client) forEachMirror(ctx context.Context, fn func(mirror string) error) error {
	var lastErr error
	for _, mirror := range c.mirrors {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(mirror)
		if err == nil {
			return nil
		}
		lastErr = err

		if c.clients[mirror].CircuitState() == httpclient.CircuitOpen {
			c.logger.Debug("Catalog mirror skipped",
				slog.String("mirror", mirror),
				slog.String("circuit", httpclient.CircuitOpen.String()))
			continue
		}
		c.logger.Warn("Catalog mirror failed",
			slog.String("mirror", mirror),
			slog.String("error", err.Error()))
	}

	if lastErr == nil {
		return ErrAllMirrorsFailed
	}
	return fmt.Errorf("%w: %v", ErrAllMirrorsFailed, lastErr)
}

// doRequest performs a GET against one mirror and decodes the JSON body.
func (c *Client) doRequest(ctx context.Context, mirror, requestPath string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mirror+requestPath, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.clients[mirror].Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyReadSize))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

// searchPath builds the request path for a station search. The top click
// listing stands in for an empty query so a blank search box still shows
// something worth playing.
func searchPath(query string, limit int) string {
	if strings.TrimSpace(query) == "" {
		return fmt.Sprintf("%s/%d", pathTopClick, limit)
	}
	params := url.Values{}
	params.Set(paramName, query)
	params.Set(paramLimit, strconv.Itoa(limit))
	return pathSearch + "?" + params.Encode()
}

// breakerName derives the per-mirror breaker name from the mirror URL so
// breaker state reads naturally in health output.
func breakerName(mirror string) string {
	if u, err := url.Parse(mirror); err == nil && u.Host != "" {
		return "catalog:" + u.Host
	}
	return "catalog:" + mirror
}
