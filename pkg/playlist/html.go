package playlist

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// audioExtensions are path extensions taken as direct stream or file URLs
// when harvesting links from an HTML page.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".aac":  true,
	".aacp": true,
	".m4a":  true,
	".mp4":  true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
	".flac": true,
	".wav":  true,
	".wma":  true,
}

// parseHTMLLinks harvests candidate stream URLs from an HTML page. Some
// stations answer a playlist URL with a landing page instead; the audio
// links on it are usually the real streams. Anchors count only when their
// target looks like audio or a playlist, while <audio>/<source> elements
// count unconditionally.
func parseHTMLLinks(data []byte, baseURL string) ([]Entry, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	var entries []Entry
	seen := make(map[string]bool)

	add := func(ref, title string) {
		u := resolveRef(baseURL, ref)
		if u == "" || seen[u] {
			return
		}
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return
		}
		seen[u] = true
		entries = append(entries, Entry{URL: u, Title: title})
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				href := attrValue(n, "href")
				ext := urlExtension(resolveRef(baseURL, href))
				_, isPlaylist := playlistExtensions[ext]
				if audioExtensions[ext] || isPlaylist {
					add(href, collapseSpace(nodeText(n)))
				}
			case "audio", "source":
				if src := attrValue(n, "src"); src != "" {
					add(src, "")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return entries, nil
}

// attrValue returns the named attribute of n, or "".
func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// childText returns the text of the first child element with the given
// name, searching one level deep.
func childText(n *html.Node, name string) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == name {
			return collapseSpace(nodeText(c))
		}
	}
	return ""
}

// nodeText concatenates all text beneath n.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
