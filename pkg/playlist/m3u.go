package playlist

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// parseM3U extracts entries from a plain or extended M3U document.
// EXTINF titles attach to the following URL line; bare URL lines become
// untitled entries.
func parseM3U(data []byte, baseURL string) ([]Entry, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)

	var entries []Entry
	var pendingTitle string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#EXTINF:") {
			pendingTitle = extinfTitle(line)
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		entries = append(entries, Entry{
			URL:   resolveRef(baseURL, line),
			Title: pendingTitle,
		})
		pendingTitle = ""
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning m3u: %w", err)
	}

	return entries, nil
}

// extinfTitle returns the display title from an EXTINF line. The title is
// everything after the last comma outside quotes.
func extinfTitle(line string) string {
	rest := strings.TrimPrefix(line, "#EXTINF:")

	inQuotes := false
	for i := len(rest) - 1; i >= 0; i-- {
		if rest[i] == '"' {
			inQuotes = !inQuotes
		}
		if rest[i] == ',' && !inQuotes {
			return strings.TrimSpace(rest[i+1:])
		}
	}
	return ""
}
