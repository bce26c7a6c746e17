package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStation_Normalize(t *testing.T) {
	t.Run("prefers resolved URL", func(t *testing.T) {
		entry := station{
			StationUUID: "u1",
			Name:        " Radio One ",
			URL:         "http://one.example.com/playlist.m3u",
			URLResolved: "http://one.example.com/stream",
		}
		st := entry.normalize()
		assert.Equal(t, "http://one.example.com/stream", st.SourceURL)
		assert.Equal(t, "Radio One", st.Name)
	})

	t.Run("falls back to raw URL", func(t *testing.T) {
		entry := station{StationUUID: "u2", URL: "http://two.example.com/stream"}
		st := entry.normalize()
		assert.Equal(t, "http://two.example.com/stream", st.SourceURL)
	})

	t.Run("keeps codec label alongside derived MIME", func(t *testing.T) {
		entry := station{StationUUID: "u3", URL: "http://three.example.com", Codec: "MP3"}
		st := entry.normalize()
		assert.Equal(t, "MP3", st.Codec)
		assert.Equal(t, "audio/mpeg", st.DeclaredMIME)
	})
}

func TestNormalizeAll_DropsBlankURLs(t *testing.T) {
	entries := []station{
		{StationUUID: "kept", URL: "http://kept.example.com"},
		{StationUUID: "dropped", URL: "   "},
		{StationUUID: "also-dropped"},
	}
	stations := normalizeAll(entries)
	assert.Len(t, stations, 1)
	assert.Equal(t, "kept", stations[0].ID)
}

func TestMimeForCodec(t *testing.T) {
	tests := []struct {
		codec string
		want  string
	}{
		{"MP3", "audio/mpeg"},
		{"mp3", "audio/mpeg"},
		{" MP3 ", "audio/mpeg"},
		{"AAC", "audio/aac"},
		{"AAC+", "audio/aacp"},
		{"OGG", "audio/ogg"},
		{"VORBIS", "audio/ogg"},
		{"FLAC", "audio/flac"},
		{"UNKNOWN", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mimeForCodec(tt.codec), "codec %q", tt.codec)
	}
}
