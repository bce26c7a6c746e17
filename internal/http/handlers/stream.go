package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmylchreest/radiarr/internal/relay"
	"github.com/jmylchreest/radiarr/internal/service"
)

// streamChunkSize is the read granularity of the relay pump. Small enough
// that a speaker hears new audio promptly, large enough to keep syscall
// overhead irrelevant at radio bitrates.
const streamChunkSize = 4096

// StreamHandler serves relay session audio to speakers.
type StreamHandler struct {
	playback *service.PlaybackService
	logger   *slog.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(playback *service.PlaybackService) *StreamHandler {
	return &StreamHandler{
		playback: playback,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger.
func (h *StreamHandler) WithLogger(logger *slog.Logger) *StreamHandler {
	h.logger = logger
	return h
}

// Register registers a documentation-only operation for the stream endpoint.
// The live route is a raw Chi handler (RegisterChiRoutes): Huma's
// StreamResponse commits HTTP 200 before the handler can pick the status,
// and attach failures need 409/410/503 on the wire.
func (h *StreamHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "streamSession",
		Method:      "GET",
		Path:        "/stream/{sessionID}",
		Summary:     "Pull a relay session's audio",
		Description: `Serves the session's transcoded MP3 as a continuous chunked response.
The speaker is the only permitted consumer; a second connection while one is
attached is rejected with 409. The response stays open for as long as the
speaker keeps playing.`,
		Tags: []string{"Stream"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "MP3 audio until the session ends or the speaker disconnects",
				Headers: map[string]*huma.Param{
					"Content-Type":  {Description: "audio/mpeg"},
					"Cache-Control": {Description: "no-cache, no-store, must-revalidate"},
				},
			},
			"400": {Description: "Invalid session ID format"},
			"404": {Description: "Session not found"},
			"409": {Description: "Session already has a consumer"},
			"410": {Description: "Session already ended"},
			"503": {
				Description: "Session still starting; retry shortly",
				Headers: map[string]*huma.Param{
					"Retry-After": {Description: "Seconds to wait before reconnecting"},
				},
			},
		},
		SkipValidateBody: true,
	}, h.streamDocsHandler)
}

// streamDocsHandler is a no-op handler for the documentation-only
// registration. Chi matches the route first, so this never runs.
func (h *StreamHandler) streamDocsHandler(ctx context.Context, input *StreamSessionInput) (*huma.StreamResponse, error) {
	return nil, huma.Error500InternalServerError("this endpoint is handled by raw Chi handlers", nil)
}

// StreamSessionInput is the documented input for the stream endpoint.
type StreamSessionInput struct {
	SessionID string `path:"sessionID" doc:"Relay session ID"`
}

// RegisterChiRoutes registers the streaming route as a raw Chi handler.
func (h *StreamHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/stream/{sessionID}", h.handleStream)
}

// streamChunk carries one pump read across the goroutine boundary.
type streamChunk struct {
	data []byte
	err  error
}

// handleStream attaches to the session and pumps its audio to the speaker
// until the session ends or the speaker disconnects. Detach on every exit
// path opens the stall grace window rather than killing the session, so a
// speaker reconnect resumes the same transcoder.
func (h *StreamHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "invalid session ID format", http.StatusBadRequest)
		return
	}

	session, ok := h.playback.Session(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	reader, err := session.AttachConsumer()
	if err != nil {
		switch {
		case errors.Is(err, relay.ErrConsumerAttached):
			http.Error(w, "session already has a consumer", http.StatusConflict)
		case errors.Is(err, relay.ErrSessionNotReady):
			w.Header().Set("Retry-After", "1")
			http.Error(w, "session is still starting", http.StatusServiceUnavailable)
		case errors.Is(err, relay.ErrSessionClosed):
			http.Error(w, "session has ended", http.StatusGone)
		default:
			http.Error(w, "failed to attach to session", http.StatusInternalServerError)
		}
		return
	}
	defer session.DetachConsumer()

	h.logger.Debug("Consumer attached",
		slog.String("session_id", session.ID.String()),
		slog.String("device_id", session.DeviceID),
		slog.String("remote_addr", r.RemoteAddr))

	w.Header().Set("Content-Type", relay.ContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")

	// The server's write timeout would sever a healthy relay mid-track.
	// ResponseController reaches through the middleware wrappers.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Warn("Could not lift write deadline, long sessions may be cut short",
			slog.String("session_id", session.ID.String()),
			slog.Any("error", err))
	}

	// Reads run on their own goroutine so a source that goes silent cannot
	// keep this handler alive after the speaker hangs up. The pump hands
	// each chunk over and never touches it again.
	chunks := make(chan streamChunk)
	go func() {
		for {
			buf := make([]byte, streamChunkSize)
			n, readErr := reader.Read(buf)
			select {
			case chunks <- streamChunk{data: buf[:n], err: readErr}:
			case <-r.Context().Done():
				return
			}
			if readErr != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("Consumer disconnected",
				slog.String("session_id", session.ID.String()),
				slog.String("device_id", session.DeviceID))
			return
		case chunk := <-chunks:
			if len(chunk.data) > 0 {
				if _, writeErr := w.Write(chunk.data); writeErr != nil {
					h.logger.Debug("Consumer write failed",
						slog.String("session_id", session.ID.String()),
						slog.Any("error", writeErr))
					return
				}
				// Each chunk reaches the speaker immediately; buffered
				// audio is dead air on reconnect.
				if flushErr := rc.Flush(); flushErr != nil {
					return
				}
			}
			if chunk.err != nil {
				h.logger.Debug("Session stream ended",
					slog.String("session_id", session.ID.String()),
					slog.Any("reason", chunk.err))
				return
			}
		}
	}
}
