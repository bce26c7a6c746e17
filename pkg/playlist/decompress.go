package playlist

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// decompress returns the document bytes with any gzip, bzip2, or xz layer
// removed. Compression is detected from magic bytes, not file names; plain
// documents pass through untouched.
func decompress(data []byte) ([]byte, error) {
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		gzr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gzr.Close()
		out, err := io.ReadAll(gzr)
		if err != nil {
			return nil, fmt.Errorf("decompressing gzip: %w", err)
		}
		return out, nil

	case len(data) >= 3 && data[0] == 'B' && data[1] == 'Z' && data[2] == 'h':
		out, err := io.ReadAll(bzip2.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("decompressing bzip2: %w", err)
		}
		return out, nil

	case len(data) >= 6 && data[0] == 0xfd && data[1] == '7' && data[2] == 'z' &&
		data[3] == 'X' && data[4] == 'Z' && data[5] == 0x00:
		xzr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("creating xz reader: %w", err)
		}
		out, err := io.ReadAll(xzr)
		if err != nil {
			return nil, fmt.Errorf("decompressing xz: %w", err)
		}
		return out, nil
	}

	return data, nil
}
