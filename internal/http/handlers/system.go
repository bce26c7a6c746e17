package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/radiarr/internal/ffmpeg"
)

// TranscoderInfoProvider provides transcoder binary information.
type TranscoderInfoProvider interface {
	Detect(ctx context.Context) (*ffmpeg.BinaryInfo, error)
}

// SystemHandler handles system information endpoints.
type SystemHandler struct {
	detector TranscoderInfoProvider
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(detector TranscoderInfoProvider) *SystemHandler {
	return &SystemHandler{
		detector: detector,
	}
}

// TranscoderInfoInput is the input for the transcoder info endpoint.
type TranscoderInfoInput struct{}

// TranscoderInfoOutput is the output for the transcoder info endpoint.
type TranscoderInfoOutput struct {
	Body TranscoderInfoResponse
}

// TranscoderInfoResponse represents the transcoder capabilities response.
type TranscoderInfoResponse struct {
	Available     bool     `json:"available" doc:"Whether FFmpeg is available"`
	FFmpegPath    string   `json:"ffmpeg_path,omitempty" doc:"Path to FFmpeg binary"`
	Version       string   `json:"version,omitempty" doc:"FFmpeg version string"`
	MajorVersion  int      `json:"major_version,omitempty" doc:"Major version number"`
	MinorVersion  int      `json:"minor_version,omitempty" doc:"Minor version number"`
	Configuration string   `json:"configuration,omitempty" doc:"Build configuration flags"`
	MP3Capable    bool     `json:"mp3_capable" doc:"Whether the MP3 encoder relays need is present"`
	Encoders      []string `json:"encoders,omitempty" doc:"Available audio encoders"`
}

// Register registers the system routes with the API.
func (h *SystemHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getTranscoderInfo",
		Method:      "GET",
		Path:        "/api/v1/system/transcoder",
		Summary:     "Get transcoder capabilities",
		Description: "Returns the detected FFmpeg installation and whether it can encode the MP3 relays produce",
		Tags:        []string{"System"},
	}, h.GetTranscoderInfo)
}

// GetTranscoderInfo returns transcoder capabilities. A missing binary is
// reported as unavailable, not as an error; relays fail at play time with a
// clearer message.
func (h *SystemHandler) GetTranscoderInfo(ctx context.Context, input *TranscoderInfoInput) (*TranscoderInfoOutput, error) {
	info, err := h.detector.Detect(ctx)
	if err != nil {
		return &TranscoderInfoOutput{
			Body: TranscoderInfoResponse{
				Available: false,
			},
		}, nil
	}

	return &TranscoderInfoOutput{
		Body: TranscoderInfoResponse{
			Available:     true,
			FFmpegPath:    info.FFmpegPath,
			Version:       info.Version,
			MajorVersion:  info.MajorVersion,
			MinorVersion:  info.MinorVersion,
			Configuration: info.Configuration,
			MP3Capable:    info.HasEncoder(ffmpeg.MP3Encoder),
			Encoders:      info.Encoders,
		},
	}, nil
}
