package probe

import (
	"bytes"
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mp3Frame returns one valid MPEG-1 Layer III frame header (128 kbps,
// 44.1 kHz, no padding) followed by a zero payload. Frame length for that
// combination is 417 bytes.
func mp3Frame() []byte {
	frame := make([]byte, 417)
	copy(frame, []byte{0xff, 0xfb, 0x90, 0x00})
	return frame
}

// adtsFrame returns one valid ADTS frame (AAC-LC, 44.1 kHz, stereo) with a
// 16 byte total frame length.
func adtsFrame() []byte {
	frame := make([]byte, 16)
	copy(frame, []byte{0xff, 0xf1, 0x50, 0x80, 0x02, 0x1f, 0xfc})
	return frame
}

// tsChunk muxes a single AAC access unit into MPEG-TS, producing PAT, PMT
// and one PES packet.
func tsChunk(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	track := &mpegts.Track{
		PID: 0x101,
		Codec: &mpegts.CodecMPEG4Audio{
			Config: mpeg4audio.AudioSpecificConfig{
				Type:         mpeg4audio.ObjectTypeAACLC,
				SampleRate:   44100,
				ChannelCount: 2,
			},
		},
	}
	w := &mpegts.Writer{W: &buf, Tracks: []*mpegts.Track{track}}
	require.NoError(t, w.Initialize())
	require.NoError(t, w.WriteMPEG4Audio(track, 0, [][]byte{make([]byte, 64)}))

	return buf.Bytes()
}

func TestSniffSignature_ID3(t *testing.T) {
	chunk := append([]byte("ID3\x04\x00\x00"), make([]byte, 100)...)

	sig, ok := sniffSignature(chunk)
	require.True(t, ok)
	assert.Equal(t, "mp3", sig.codec)
	assert.Equal(t, "mp3", sig.container)
	assert.True(t, sig.compatible)
}

func TestSniffSignature_MPEGAudio(t *testing.T) {
	chunk := append(mp3Frame(), mp3Frame()...)

	sig, ok := sniffSignature(chunk)
	require.True(t, ok)
	assert.Equal(t, "mp3", sig.codec)
	assert.Equal(t, "mp3", sig.container)
	assert.True(t, sig.compatible)
}

func TestSniffSignature_MPEGAudio_MidStreamStart(t *testing.T) {
	// A capture can begin mid-frame; the scan must find the next sync.
	chunk := append([]byte{0x00, 0x12, 0x34}, append(mp3Frame(), mp3Frame()...)...)

	sig, ok := sniffSignature(chunk)
	require.True(t, ok)
	assert.Equal(t, "mp3", sig.codec)
}

func TestSniffSignature_ADTS(t *testing.T) {
	chunk := append(adtsFrame(), adtsFrame()...)

	sig, ok := sniffSignature(chunk)
	require.True(t, ok)
	assert.Equal(t, "aac", sig.codec)
	assert.Equal(t, "adts", sig.container)
	assert.True(t, sig.compatible)
}

func TestSniffSignature_ADTS_TruncatedTail(t *testing.T) {
	full := adtsFrame()
	chunk := append(adtsFrame(), full[:10]...)

	sig, ok := sniffSignature(chunk)
	require.True(t, ok)
	assert.Equal(t, "aac", sig.codec)
}

func TestSniffSignature_OggVorbis(t *testing.T) {
	chunk := append([]byte("OggS\x00\x02"), make([]byte, 22)...)
	chunk = append(chunk, []byte("\x01vorbis")...)

	sig, ok := sniffSignature(chunk)
	require.True(t, ok)
	assert.Equal(t, "vorbis", sig.codec)
	assert.Equal(t, "ogg", sig.container)
	assert.True(t, sig.compatible)
}

func TestSniffSignature_OggOpus(t *testing.T) {
	chunk := append([]byte("OggS\x00\x02"), make([]byte, 22)...)
	chunk = append(chunk, []byte("OpusHead")...)

	sig, ok := sniffSignature(chunk)
	require.True(t, ok)
	assert.Equal(t, "opus", sig.codec)
	assert.False(t, sig.compatible)
}

func TestSniffSignature_FLAC(t *testing.T) {
	chunk := append([]byte("fLaC"), make([]byte, 64)...)

	sig, ok := sniffSignature(chunk)
	require.True(t, ok)
	assert.Equal(t, "flac", sig.codec)
	assert.True(t, sig.compatible)
}

func TestSniffSignature_MP4(t *testing.T) {
	chunk := append([]byte{0x00, 0x00, 0x00, 0x20}, []byte("ftypM4A ")...)
	chunk = append(chunk, make([]byte, 64)...)

	sig, ok := sniffSignature(chunk)
	require.True(t, ok)
	assert.Equal(t, "mp4", sig.container)
	assert.True(t, sig.compatible)
}

func TestSniffSignature_MPEGTS(t *testing.T) {
	chunk := tsChunk(t)
	require.GreaterOrEqual(t, len(chunk), 3*tsPacketSize)

	sig, ok := sniffSignature(chunk)
	require.True(t, ok)
	assert.Equal(t, "mpegts", sig.container)
	assert.Equal(t, "aac", sig.codec)
	assert.False(t, sig.compatible)
}

func TestSniffSignature_Garbage(t *testing.T) {
	chunk := bytes.Repeat([]byte{0x01, 0x02, 0x80, 0x90}, 256)

	_, ok := sniffSignature(chunk)
	assert.False(t, ok)
}

func TestSniffSignature_Empty(t *testing.T) {
	_, ok := sniffSignature(nil)
	assert.False(t, ok)
}

func TestPrintableRatio(t *testing.T) {
	assert.InDelta(t, 1.0, printableRatio([]byte("plain text")), 0.001)
	assert.InDelta(t, 0.0, printableRatio([]byte{0x00, 0x01, 0xff}), 0.001)
	assert.Equal(t, 0.0, printableRatio(nil))
}
