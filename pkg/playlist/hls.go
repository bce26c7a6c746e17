package playlist

import (
	"fmt"
	"sort"

	hls "github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

// parseHLS parses an HLS manifest using gohlslib.
//
// Multivariant (master) manifests yield one entry per variant, highest
// bandwidth first. Media manifests describe a rolling segment window
// rather than a continuous resource, so they return ErrLiveManifest;
// handing a segment URL to a renderer would play a few seconds and stop.
func parseHLS(data []byte, baseURL string) ([]Entry, error) {
	pl, err := hls.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parsing HLS manifest: %w", err)
	}

	switch p := pl.(type) {
	case *hls.Multivariant:
		variants := make([]*hls.MultivariantVariant, len(p.Variants))
		copy(variants, p.Variants)
		sort.SliceStable(variants, func(i, j int) bool {
			return variants[i].Bandwidth > variants[j].Bandwidth
		})

		entries := make([]Entry, 0, len(variants))
		for _, variant := range variants {
			u := resolveRef(baseURL, variant.URI)
			if u == "" {
				continue
			}
			entries = append(entries, Entry{URL: u})
		}
		return entries, nil

	case *hls.Media:
		return nil, ErrLiveManifest

	default:
		return nil, fmt.Errorf("unsupported HLS manifest type %T", pl)
	}
}
