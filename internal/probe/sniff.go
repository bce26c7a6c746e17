package probe

import (
	"bytes"
	"context"
	"fmt"

	"github.com/asticode/go-astits"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg1audio"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
)

const (
	tsPacketSize   = 188
	adtsHeaderSize = 7
)

// signature is a byte-level classification of a stream chunk.
type signature struct {
	codec      string
	container  string
	compatible bool
	reason     string
}

// sniffSignature inspects the first bytes of a stream for known container
// and codec signatures. Checks run from most to least specific: the TS sync
// pattern and the strict ADTS sync (layer bits zero) are tested before the
// looser MPEG audio frame sync they overlap with.
func sniffSignature(chunk []byte) (signature, bool) {
	if bytes.HasPrefix(chunk, []byte("ID3")) {
		return signature{codec: "mp3", container: "mp3", compatible: true, reason: "ID3v2 tagged MPEG audio"}, true
	}
	if sig, ok := sniffTS(chunk); ok {
		return sig, true
	}
	if sig, ok := sniffADTS(chunk); ok {
		return sig, true
	}
	if sig, ok := sniffMPEGAudio(chunk); ok {
		return sig, true
	}
	if bytes.HasPrefix(chunk, []byte("OggS")) {
		return sniffOgg(chunk), true
	}
	if bytes.HasPrefix(chunk, []byte("fLaC")) {
		return signature{codec: "flac", container: "flac", compatible: true, reason: "FLAC stream"}, true
	}
	if len(chunk) >= 8 && bytes.Equal(chunk[4:8], []byte("ftyp")) {
		return signature{codec: "aac", container: "mp4", compatible: true, reason: "MP4 container"}, true
	}
	return signature{}, false
}

// sniffADTS detects ADTS-framed AAC. The chunk is trimmed to whole frames
// before verification so a mid-frame cut does not fail the parse.
func sniffADTS(chunk []byte) (signature, bool) {
	if len(chunk) < adtsHeaderSize || chunk[0] != 0xff || chunk[1]&0xf6 != 0xf0 {
		return signature{}, false
	}

	length := 0
	for length+adtsHeaderSize <= len(chunk) {
		if chunk[length] != 0xff || chunk[length+1]&0xf6 != 0xf0 {
			break
		}
		frameLen := int(chunk[length+3]&0x03)<<11 | int(chunk[length+4])<<3 | int(chunk[length+5])>>5
		if frameLen < adtsHeaderSize || length+frameLen > len(chunk) {
			break
		}
		length += frameLen
	}
	if length == 0 {
		return signature{}, false
	}

	var packets mpeg4audio.ADTSPackets
	if err := packets.Unmarshal(chunk[:length]); err != nil {
		return signature{}, false
	}
	return signature{
		codec:      "aac",
		container:  "adts",
		compatible: true,
		reason:     fmt.Sprintf("ADTS AAC, %d frame(s) verified", len(packets)),
	}, true
}

// sniffMPEGAudio detects raw MPEG audio (MP3). A candidate sync position
// only counts when the frame header parses and, if the chunk is long
// enough, a second header parses right after the first frame.
func sniffMPEGAudio(chunk []byte) (signature, bool) {
	for i := 0; i+4 <= len(chunk); i++ {
		if chunk[i] != 0xff || chunk[i+1]&0xe0 != 0xe0 {
			continue
		}

		var h mpeg1audio.FrameHeader
		if err := h.Unmarshal(chunk[i:]); err != nil {
			continue
		}
		frameLen := h.FrameLen()
		if frameLen <= 0 {
			continue
		}

		next := i + frameLen
		if next+4 <= len(chunk) {
			var h2 mpeg1audio.FrameHeader
			if err := h2.Unmarshal(chunk[next:]); err != nil {
				continue
			}
		}

		return signature{codec: "mp3", container: "mp3", compatible: true, reason: "MPEG audio frame sync"}, true
	}
	return signature{}, false
}

func sniffOgg(chunk []byte) signature {
	switch {
	case bytes.Contains(chunk, []byte("OpusHead")):
		return signature{codec: "opus", container: "ogg", compatible: false, reason: "Ogg Opus"}
	case bytes.Contains(chunk, []byte("\x01vorbis")):
		return signature{codec: "vorbis", container: "ogg", compatible: true, reason: "Ogg Vorbis"}
	case bytes.Contains(chunk, []byte("\x7fFLAC")):
		return signature{codec: "flac", container: "ogg", compatible: false, reason: "Ogg FLAC"}
	default:
		return signature{codec: "", container: "ogg", compatible: true, reason: "Ogg container"}
	}
}

// sniffTS detects MPEG-TS by its 188-byte sync pattern. A TS stream is
// never speaker-compatible; the PAT/PMT demux only serves to record which
// codec the relay will be transcoding from.
func sniffTS(chunk []byte) (signature, bool) {
	if len(chunk) < 2*tsPacketSize+1 {
		return signature{}, false
	}

	offset := -1
	scanMax := len(chunk) - 2*tsPacketSize - 1
	if scanMax > tsPacketSize {
		scanMax = tsPacketSize
	}
	for i := 0; i <= scanMax; i++ {
		if chunk[i] == 0x47 && chunk[i+tsPacketSize] == 0x47 && chunk[i+2*tsPacketSize] == 0x47 {
			offset = i
			break
		}
	}
	if offset < 0 {
		return signature{}, false
	}

	sig := signature{container: "mpegts", compatible: false, reason: "MPEG-TS container"}
	audio, video := tsStreamInfo(chunk[offset:])
	sig.codec = audio
	switch {
	case video:
		sig.reason = "MPEG-TS container with video"
	case audio != "":
		sig.reason = fmt.Sprintf("MPEG-TS container (%s audio)", audio)
	}
	return sig, true
}

// tsStreamInfo demuxes PAT/PMT from the chunk and reports the first audio
// codec and whether a video elementary stream is present.
func tsStreamInfo(data []byte) (string, bool) {
	dmx := astits.NewDemuxer(context.Background(), bytes.NewReader(data))

	audio := ""
	video := false
	for {
		d, err := dmx.NextData()
		if err != nil {
			return audio, video
		}
		if d.PMT == nil {
			continue
		}
		for _, es := range d.PMT.ElementaryStreams {
			switch es.StreamType {
			case astits.StreamTypeMPEG1Audio, astits.StreamTypeMPEG2HalvedSampleRateAudio:
				if audio == "" {
					audio = "mp2"
				}
			case astits.StreamTypeADTS:
				if audio == "" {
					audio = "aac"
				}
			case astits.StreamTypeAC3Audio:
				if audio == "" {
					audio = "ac3"
				}
			case astits.StreamTypeEAC3Audio:
				if audio == "" {
					audio = "eac3"
				}
			case astits.StreamTypeMPEG1Video, astits.StreamTypeMPEG2Video,
				astits.StreamTypeH264Video, astits.StreamTypeH265Video:
				video = true
			}
		}
		return audio, video
	}
}
