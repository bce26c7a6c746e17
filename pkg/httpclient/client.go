// Package httpclient provides a resilient HTTP client with circuit breaker,
// automatic retries, transparent decompression, and structured logging.
//
// The client wraps the standard http.Client and adds production-grade features:
//   - Circuit breaker to prevent cascading failures
//   - Automatic retries with exponential backoff
//   - Transparent decompression (gzip, deflate, brotli)
//   - Structured logging (credential redaction handled by observability package)
//   - Response size limits applied after decompression
package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// Common errors returned by the client.
var (
	ErrCircuitOpen      = errors.New("circuit breaker is open")
	ErrMaxRetries       = errors.New("max retries exceeded")
	ErrResponseTooLarge = errors.New("response body exceeds maximum size limit")
)

// Default configuration values.
const (
	DefaultTimeout              = 30 * time.Second
	DefaultRetryAttempts        = 3
	DefaultRetryDelay           = 1 * time.Second
	DefaultRetryMaxDelay        = 30 * time.Second
	DefaultBackoffMultiplier    = 2.0
	DefaultCircuitThreshold     = 5
	DefaultCircuitTimeout       = 30 * time.Second
	DefaultCircuitHalfOpenMax   = 1
	DefaultMaxResponseSize      = 0 // 0 means no limit
	DefaultAcceptEncodingHeader = "gzip, deflate, br"
	DefaultUserAgentHeader      = "radiarr-httpclient/1.0"
)

// HTTP header constants.
const (
	HeaderAcceptEncoding  = "Accept-Encoding"
	HeaderContentEncoding = "Content-Encoding"
	HeaderUserAgent       = "User-Agent"

	EncodingGzip    = "gzip"
	EncodingDeflate = "deflate"
	EncodingBrotli  = "br"
)

// Config holds the configuration for the HTTP client.
type Config struct {
	// Timeout is the overall request timeout.
	Timeout time.Duration

	// RetryAttempts is the number of retry attempts for failed requests.
	RetryAttempts int

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration

	// RetryMaxDelay is the maximum delay between retries.
	RetryMaxDelay time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// CircuitThreshold is the number of failures before the circuit opens.
	CircuitThreshold int

	// CircuitTimeout is how long the circuit stays open before trying again.
	CircuitTimeout time.Duration

	// CircuitHalfOpenMax is the max requests allowed in half-open state.
	CircuitHalfOpenMax int

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// Logger is the structured logger for request/response logging.
	Logger *slog.Logger

	// EnableDecompression enables automatic response decompression.
	EnableDecompression bool

	// MaxResponseSize is the maximum allowed response body size in bytes.
	// The limit is applied AFTER decompression to protect against zip bombs.
	// Set to 0 to disable the limit (default).
	MaxResponseSize int64

	// AcceptableStatusCodes specifies which HTTP status codes count as
	// successful for circuit breaker purposes. If set, ONLY these codes are
	// acceptable; others are recorded as failures without being retried.
	// If nil/empty (default), all 2xx status codes are acceptable.
	//
	// UPnP control points return SOAP faults as HTTP 500, so the speaker
	// client configures "200-299,500" to keep faults readable instead of
	// tripping the breaker.
	AcceptableStatusCodes *StatusCodeSet

	// BaseClient is the underlying http.Client to use.
	// If nil, a default client is created.
	BaseClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:             DefaultTimeout,
		RetryAttempts:       DefaultRetryAttempts,
		RetryDelay:          DefaultRetryDelay,
		RetryMaxDelay:       DefaultRetryMaxDelay,
		BackoffMultiplier:   DefaultBackoffMultiplier,
		CircuitThreshold:    DefaultCircuitThreshold,
		CircuitTimeout:      DefaultCircuitTimeout,
		CircuitHalfOpenMax:  DefaultCircuitHalfOpenMax,
		UserAgent:           DefaultUserAgentHeader,
		Logger:              slog.Default(),
		EnableDecompression: true,
		MaxResponseSize:     DefaultMaxResponseSize,
	}
}

// Client is a resilient HTTP client with circuit breaker and retry support.
type Client struct {
	config  Config
	client  *http.Client
	breaker *CircuitBreaker
	logger  *slog.Logger
}

// New creates a new resilient HTTP client with the given configuration.
func New(cfg Config) *Client {
	return NewWithBreaker(cfg, nil)
}

// NewWithDefaults creates a new client with default configuration.
func NewWithDefaults() *Client {
	return New(DefaultConfig())
}

// NewWithBreaker creates a new client with the given config and external
// circuit breaker. This allows sharing breakers between clients (managed by
// CircuitBreakerManager). If breaker is nil, a new one is created from the
// config.
func NewWithBreaker(cfg Config, breaker *CircuitBreaker) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	baseClient := cfg.BaseClient
	if baseClient == nil {
		baseClient = &http.Client{
			Timeout: cfg.Timeout,
		}
	}

	if breaker == nil {
		breaker = NewCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitTimeout, cfg.CircuitHalfOpenMax)
	}

	return &Client{
		config:  cfg,
		client:  baseClient,
		breaker: breaker,
		logger:  cfg.Logger,
	}
}

// Do executes an HTTP request with circuit breaker protection and automatic retries.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext executes an HTTP request with the given context.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Header.Get(HeaderUserAgent) == "" && c.config.UserAgent != "" {
		req.Header.Set(HeaderUserAgent, c.config.UserAgent)
	}
	if c.config.EnableDecompression && req.Header.Get(HeaderAcceptEncoding) == "" {
		req.Header.Set(HeaderAcceptEncoding, DefaultAcceptEncodingHeader)
	}

	var lastErr error
	delay := c.config.RetryDelay

	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying request",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("url", req.URL.String()),
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * c.config.BackoffMultiplier)
			if delay > c.config.RetryMaxDelay {
				delay = c.config.RetryMaxDelay
			}
		}

		if !c.breaker.Allow() {
			lastErr = ErrCircuitOpen
			c.logger.Warn("circuit breaker open, skipping request",
				slog.String("url", req.URL.String()),
				slog.String("state", c.breaker.State().String()),
			)
			continue
		}

		start := time.Now()
		resp, err := c.client.Do(req.WithContext(ctx))
		duration := time.Since(start)

		if err != nil {
			c.breaker.RecordFailure()
			lastErr = err
			c.logger.Warn("request failed",
				slog.String("url", req.URL.String()),
				slog.String("method", req.Method),
				slog.Duration("duration", duration),
				slog.String("error", err.Error()),
				slog.Int("attempt", attempt),
			)

			// Context errors are not retryable
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			continue
		}

		if isRetryableStatus(resp.StatusCode) {
			c.breaker.RecordFailure()
			lastErr = fmt.Errorf("retryable status code: %d", resp.StatusCode)
			c.logger.Warn("retryable status code",
				slog.String("url", req.URL.String()),
				slog.String("method", req.Method),
				slog.Int("status", resp.StatusCode),
				slog.Duration("duration", duration),
				slog.Int("attempt", attempt),
			)
			resp.Body.Close()
			continue
		}

		if c.isAcceptableStatus(resp.StatusCode) {
			c.breaker.RecordSuccess()
		} else {
			// Recorded as a failure but not retried; the caller still gets
			// the response to inspect.
			c.breaker.RecordFailure()
			c.logger.Debug("non-acceptable status code recorded as failure",
				slog.String("url", req.URL.String()),
				slog.Int("status", resp.StatusCode),
			)
		}
		c.logger.Debug("request completed",
			slog.String("url", req.URL.String()),
			slog.String("method", req.Method),
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", duration),
			slog.Int64("content_length", resp.ContentLength),
		)

		if c.config.EnableDecompression {
			resp.Body = c.wrapDecompression(resp)
		}

		if c.config.MaxResponseSize > 0 {
			resp.Body = newLimitedReader(resp.Body, c.config.MaxResponseSize)
		}

		return resp, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMaxRetries, lastErr)
	}
	return nil, ErrMaxRetries
}

// Get performs a GET request to the specified URL.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.Do(req)
}

// CircuitState returns the current state of the circuit breaker.
func (c *Client) CircuitState() CircuitState {
	return c.breaker.State()
}

// ResetCircuit resets the circuit breaker to closed state.
func (c *Client) ResetCircuit() {
	c.breaker.Reset()
}

// StandardClient returns a standard *http.Client that routes through this
// resilient client, for code that only accepts an *http.Client.
func (c *Client) StandardClient() *http.Client {
	return &http.Client{
		Transport: &resilientTransport{client: c},
		Timeout:   c.config.Timeout,
	}
}

// resilientTransport implements http.RoundTripper using the resilient client.
type resilientTransport struct {
	client *Client
}

// RoundTrip implements http.RoundTripper.
func (t *resilientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.client.Do(req)
}

// Ensure resilientTransport implements http.RoundTripper.
var _ http.RoundTripper = (*resilientTransport)(nil)

// wrapDecompression wraps the response body with appropriate decompression.
func (c *Client) wrapDecompression(resp *http.Response) io.ReadCloser {
	encoding := resp.Header.Get(HeaderContentEncoding)
	if encoding == "" {
		return resp.Body
	}

	switch strings.ToLower(encoding) {
	case EncodingGzip:
		reader, err := gzip.NewReader(resp.Body)
		if err != nil {
			c.logger.Warn("failed to create gzip reader, returning raw body",
				slog.String("error", err.Error()),
			)
			return resp.Body
		}
		return &decompressReader{reader: reader, closer: resp.Body}

	case EncodingDeflate:
		reader := flate.NewReader(resp.Body)
		return &decompressReader{reader: reader, closer: resp.Body}

	case EncodingBrotli:
		reader := brotli.NewReader(resp.Body)
		return &decompressReader{reader: reader, closer: resp.Body}

	default:
		c.logger.Debug("unknown content encoding, returning raw body",
			slog.String("encoding", encoding),
		)
		return resp.Body
	}
}

// decompressReader wraps a decompression reader with the original body closer.
type decompressReader struct {
	reader io.Reader
	closer io.Closer
}

func (d *decompressReader) Read(p []byte) (int, error) {
	return d.reader.Read(p)
}

func (d *decompressReader) Close() error {
	if closer, ok := d.reader.(io.Closer); ok {
		closer.Close()
	}
	return d.closer.Close()
}

// limitedReader wraps a reader with a maximum size limit.
// It returns ErrResponseTooLarge when the limit is exceeded.
type limitedReader struct {
	reader    io.Reader
	closer    io.Closer
	remaining int64
	exceeded  bool
}

func newLimitedReader(r io.ReadCloser, limit int64) *limitedReader {
	return &limitedReader{
		reader:    r,
		closer:    r,
		remaining: limit,
	}
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, ErrResponseTooLarge
	}

	n, err := l.reader.Read(p)
	l.remaining -= int64(n)

	if l.remaining < 0 {
		l.exceeded = true
		return n, ErrResponseTooLarge
	}

	return n, err
}

func (l *limitedReader) Close() error {
	return l.closer.Close()
}

// isRetryableStatus returns true if the HTTP status code is retryable.
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// isAcceptableStatus returns true if the HTTP status code should be
// considered successful for circuit breaker purposes.
func (c *Client) isAcceptableStatus(code int) bool {
	if !c.config.AcceptableStatusCodes.IsEmpty() {
		return c.config.AcceptableStatusCodes.Contains(code)
	}
	return code >= 200 && code < 300
}
