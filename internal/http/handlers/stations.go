package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/radiarr/internal/catalog"
)

// StationDirectory is the catalog surface the station endpoints need.
type StationDirectory interface {
	Search(ctx context.Context, query string, limit int) ([]catalog.Station, error)
	ByUUID(ctx context.Context, id string) (*catalog.Station, error)
}

// StationsHandler handles station catalog endpoints.
type StationsHandler struct {
	directory StationDirectory
	logger    *slog.Logger
}

// NewStationsHandler creates a new stations handler.
func NewStationsHandler(directory StationDirectory) *StationsHandler {
	return &StationsHandler{
		directory: directory,
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger.
func (h *StationsHandler) WithLogger(logger *slog.Logger) *StationsHandler {
	h.logger = logger
	return h
}

// Register registers the station routes with the API.
func (h *StationsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "searchStations",
		Method:      "GET",
		Path:        "/api/v1/stations/search",
		Summary:     "Search the station catalog",
		Description: "Searches the radio-browser catalog by name, falling through the configured mirrors. An empty query lists the most clicked stations.",
		Tags:        []string{"Stations"},
	}, h.Search)

	huma.Register(api, huma.Operation{
		OperationID: "getStation",
		Method:      "GET",
		Path:        "/api/v1/stations/{uuid}",
		Summary:     "Get a station",
		Description: "Returns one catalog station by its UUID",
		Tags:        []string{"Stations"},
	}, h.Get)
}

// SearchStationsInput is the input for searching stations.
type SearchStationsInput struct {
	Query string `query:"q" doc:"Free-text station search; empty lists the most clicked stations"`
	Limit int    `query:"limit" minimum:"0" maximum:"200" doc:"Maximum results; 0 uses the configured default"`
}

// SearchStationsOutput is the output for searching stations.
type SearchStationsOutput struct {
	Body struct {
		Stations []catalog.Station `json:"stations"`
	}
}

// Search searches the station catalog.
func (h *StationsHandler) Search(ctx context.Context, input *SearchStationsInput) (*SearchStationsOutput, error) {
	stations, err := h.directory.Search(ctx, input.Query, input.Limit)
	if err != nil {
		if errors.Is(err, catalog.ErrAllMirrorsFailed) {
			return nil, huma.Error502BadGateway(err.Error())
		}
		return nil, huma.Error500InternalServerError("station search failed", err)
	}

	resp := &SearchStationsOutput{}
	resp.Body.Stations = make([]catalog.Station, 0, len(stations))
	resp.Body.Stations = append(resp.Body.Stations, stations...)

	return resp, nil
}

// GetStationInput is the input for getting a station.
type GetStationInput struct {
	UUID string `path:"uuid" doc:"Catalog station UUID"`
}

// GetStationOutput is the output for getting a station.
type GetStationOutput struct {
	Body catalog.Station
}

// Get returns one catalog station by UUID.
func (h *StationsHandler) Get(ctx context.Context, input *GetStationInput) (*GetStationOutput, error) {
	station, err := h.directory.ByUUID(ctx, input.UUID)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrStationNotFound):
			return nil, huma.Error404NotFound(fmt.Sprintf("station %s not found", input.UUID))
		case errors.Is(err, catalog.ErrAllMirrorsFailed):
			return nil, huma.Error502BadGateway(err.Error())
		}
		return nil, huma.Error500InternalServerError("station lookup failed", err)
	}

	return &GetStationOutput{Body: *station}, nil
}
