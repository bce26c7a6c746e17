package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/radiarr/internal/models"
	"github.com/jmylchreest/radiarr/internal/service"
	"github.com/jmylchreest/radiarr/pkg/format"
)

// HistoryHandler exposes the session journal.
type HistoryHandler struct {
	playback *service.PlaybackService
	logger   *slog.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(playback *service.PlaybackService) *HistoryHandler {
	return &HistoryHandler{
		playback: playback,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger.
func (h *HistoryHandler) WithLogger(logger *slog.Logger) *HistoryHandler {
	h.logger = logger
	return h
}

// Register registers the history routes with the API.
func (h *HistoryHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listHistory",
		Method:      "GET",
		Path:        "/api/v1/history",
		Summary:     "List playback history",
		Description: "Returns the most recent journal entries, newest first, with per-outcome totals",
		Tags:        []string{"History"},
	}, h.List)
}

// SessionRecordResponse represents a journal entry in API responses.
type SessionRecordResponse struct {
	SessionID    string `json:"session_id" doc:"Relay session ID"`
	DeviceID     string `json:"device_id" doc:"Speaker the session relayed to"`
	StationName  string `json:"station_name,omitempty" doc:"Station display name at play time"`
	SourceURL    string `json:"source_url" doc:"Upstream station URL"`
	Outcome      string `json:"outcome" doc:"Terminal state (stopped or error)"`
	Error        string `json:"error,omitempty" doc:"Failure detail when the outcome is error"`
	BytesRelayed int64  `json:"bytes_relayed" doc:"Total payload forwarded to the speaker"`
	BytesHuman   string `json:"bytes_human" doc:"Human-readable payload size"`
	StartedAt    string `json:"started_at" doc:"Session start timestamp"`
	EndedAt      string `json:"ended_at" doc:"Session end timestamp"`
	EndedAgo     string `json:"ended_ago" doc:"Human-readable time since the session ended"`
	Duration     string `json:"duration" doc:"How long the session lived"`
}

// SessionRecordFromModel converts a models.SessionRecord to SessionRecordResponse.
func SessionRecordFromModel(r *models.SessionRecord) SessionRecordResponse {
	return SessionRecordResponse{
		SessionID:    r.SessionID,
		DeviceID:     r.DeviceID,
		StationName:  r.StationName,
		SourceURL:    r.SourceURL,
		Outcome:      r.Outcome,
		Error:        r.Error,
		BytesRelayed: r.BytesRelayed,
		BytesHuman:   format.Bytes(r.BytesRelayed),
		StartedAt:    r.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		EndedAt:      r.EndedAt.Format("2006-01-02T15:04:05Z07:00"),
		EndedAgo:     format.RelativeTime(r.EndedAt),
		Duration:     r.Duration().Round(time.Second).String(),
	}
}

// ListHistoryInput is the input for listing history.
type ListHistoryInput struct {
	DeviceID string `query:"device_id" required:"false" doc:"Restrict to one speaker"`
	Limit    int    `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Maximum entries"`
}

// ListHistoryOutput is the output for listing history.
type ListHistoryOutput struct {
	Body struct {
		Entries  []SessionRecordResponse `json:"entries"`
		Count    int                     `json:"count"`
		Outcomes map[string]int64        `json:"outcomes"`
	}
}

// List returns recent journal entries with per-outcome totals.
func (h *HistoryHandler) List(ctx context.Context, input *ListHistoryInput) (*ListHistoryOutput, error) {
	var records []*models.SessionRecord
	var err error

	if input.DeviceID != "" {
		records, err = h.playback.DeviceHistory(ctx, input.DeviceID, input.Limit)
	} else {
		records, err = h.playback.History(ctx, input.Limit)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list playback history", err)
	}

	counts, err := h.playback.OutcomeCounts(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to count playback outcomes", err)
	}

	resp := &ListHistoryOutput{}
	resp.Body.Entries = make([]SessionRecordResponse, 0, len(records))
	for _, r := range records {
		resp.Body.Entries = append(resp.Body.Entries, SessionRecordFromModel(r))
	}
	resp.Body.Count = len(records)
	resp.Body.Outcomes = make(map[string]int64, len(counts))
	for _, c := range counts {
		resp.Body.Outcomes[c.Outcome] = c.Count
	}

	return resp, nil
}
