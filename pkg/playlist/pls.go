package playlist

import (
	"bufio"
	"bytes"
	"sort"
	"strconv"
	"strings"
)

// parsePLS parses a PLS (INI style) playlist.
//
// Entries are keyed FileN/TitleN and may appear in any order; output is
// ordered by N. The [playlist] section header and NumberOfEntries count
// are not required, since stations frequently omit or misstate them.
func parsePLS(data []byte, baseURL string) ([]Entry, error) {
	urls := make(map[int]string)
	titles := make(map[int]string)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch {
		case strings.HasPrefix(key, "file"):
			n, err := strconv.Atoi(key[len("file"):])
			if err != nil || value == "" {
				continue
			}
			urls[n] = resolveRef(baseURL, value)
		case strings.HasPrefix(key, "title"):
			n, err := strconv.Atoi(key[len("title"):])
			if err != nil {
				continue
			}
			titles[n] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	indices := make([]int, 0, len(urls))
	for n := range urls {
		indices = append(indices, n)
	}
	sort.Ints(indices)

	entries := make([]Entry, 0, len(indices))
	for _, n := range indices {
		entries = append(entries, Entry{URL: urls[n], Title: titles[n]})
	}
	return entries, nil
}
