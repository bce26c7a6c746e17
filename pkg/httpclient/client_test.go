package httpclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.RetryMaxDelay = 50 * time.Millisecond
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestClient_Get_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	client := New(testConfig())

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, CircuitClosed, client.CircuitState())
}

func TestClient_SetsUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.UserAgent = "radiarr-test/1.0"
	client := New(cfg)

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "radiarr-test/1.0", gotUA)
}

func TestClient_DoesNotOverrideUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(testConfig())

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "custom-agent/2.0")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "custom-agent/2.0", gotUA)
}

func TestClient_RetriesOnServiceUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	client := New(testConfig())

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_MaxRetriesExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.RetryAttempts = 2
	client := New(cfg)

	_, err := client.Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetries)
}

func TestClient_CircuitOpensAfterThreshold(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.RetryAttempts = 0
	cfg.CircuitThreshold = 3
	cfg.CircuitTimeout = time.Minute
	client := New(cfg)

	// 500 is not retryable, so each request records one failure
	for i := 0; i < 3; i++ {
		resp, err := client.Get(context.Background(), server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, CircuitOpen, client.CircuitState())

	_, err := client.Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetries)
}

func TestClient_AcceptableStatusCodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`<fault>upnp error 718</fault>`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.RetryAttempts = 0
	cfg.CircuitThreshold = 1
	cfg.AcceptableStatusCodes = MustParseStatusCodes("200-299,500")
	client := New(cfg)

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	// 500 is acceptable here, so the body is readable and the breaker stays closed
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "upnp error")
	assert.Equal(t, CircuitClosed, client.CircuitState())
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_GzipDecompression(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Write([]byte("compressed payload"))
		gz.Close()

		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	client := New(testConfig())

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "compressed payload", string(body))
}

func TestClient_BrotliDecompression(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		br := brotli.NewWriter(&buf)
		br.Write([]byte("brotli payload"))
		br.Close()

		w.Header().Set("Content-Encoding", "br")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	client := New(testConfig())

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "brotli payload", string(body))
}

func TestClient_MaxResponseSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(bytes.Repeat([]byte("x"), 2048))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxResponseSize = 1024
	client := New(cfg)

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	_, err = io.ReadAll(resp.Body)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestClient_StandardClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("via transport"))
	}))
	defer server.Close()

	std := New(testConfig()).StandardClient()

	resp, err := std.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "via transport", string(body))
}

func TestClient_SharedBreaker(t *testing.T) {
	breaker := NewCircuitBreaker(1, time.Minute, 1)

	cfg := testConfig()
	cfg.RetryAttempts = 0
	a := NewWithBreaker(cfg, breaker)
	b := NewWithBreaker(cfg, breaker)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	resp, err := a.Get(context.Background(), server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	// Failure recorded through client a opens the breaker for client b too
	assert.Equal(t, CircuitOpen, b.CircuitState())
}
