package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/jmylchreest/radiarr/internal/relay"
	"github.com/jmylchreest/radiarr/internal/service"
)

// SessionsHandler exposes the relay registry for diagnostics.
type SessionsHandler struct {
	playback *service.PlaybackService
	logger   *slog.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(playback *service.PlaybackService) *SessionsHandler {
	return &SessionsHandler{
		playback: playback,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger.
func (h *SessionsHandler) WithLogger(logger *slog.Logger) *SessionsHandler {
	h.logger = logger
	return h
}

// Register registers the session routes with the API.
func (h *SessionsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listSessions",
		Method:      "GET",
		Path:        "/api/v1/sessions",
		Summary:     "List active relay sessions",
		Description: "Returns all live relay sessions with per-session transcoder statistics",
		Tags:        []string{"Sessions"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getSession",
		Method:      "GET",
		Path:        "/api/v1/sessions/{sessionID}",
		Summary:     "Get a relay session",
		Description: "Returns one relay session by ID, including sessions already in a terminal state",
		Tags:        []string{"Sessions"},
	}, h.Get)
}

// ListSessionsInput is the input for listing sessions.
type ListSessionsInput struct{}

// ListSessionsOutput is the output for listing sessions.
type ListSessionsOutput struct {
	Body relay.RegistryStats
}

// List returns a snapshot of every active relay session.
func (h *SessionsHandler) List(ctx context.Context, input *ListSessionsInput) (*ListSessionsOutput, error) {
	return &ListSessionsOutput{Body: h.playback.Sessions()}, nil
}

// GetSessionInput is the input for getting a session.
type GetSessionInput struct {
	SessionID string `path:"sessionID" doc:"Relay session ID"`
}

// GetSessionOutput is the output for getting a session.
type GetSessionOutput struct {
	Body relay.SessionStats
}

// Get returns one relay session by ID.
func (h *SessionsHandler) Get(ctx context.Context, input *GetSessionInput) (*GetSessionOutput, error) {
	id, err := uuid.Parse(input.SessionID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid session ID format", err)
	}

	session, ok := h.playback.Session(id)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("session %s not found", id))
	}

	return &GetSessionOutput{Body: session.Stats()}, nil
}
