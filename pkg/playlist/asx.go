package playlist

import (
	"bytes"
	"fmt"

	"golang.org/x/net/html"
)

// parseASX parses a Windows Media metafile (ASX).
//
// ASX in the wild is rarely well formed XML (unquoted attributes, unclosed
// tags, inconsistent case), so this uses the HTML parser, which tolerates
// all of that and lowercases element and attribute names.
func parseASX(data []byte, baseURL string) ([]Entry, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing asx: %w", err)
	}

	var entries []Entry
	seen := make(map[string]bool)

	var walk func(n *html.Node, title string)
	walk = func(n *html.Node, title string) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "entry":
				if t := childText(n, "title"); t != "" {
					title = t
				}
			case "ref", "entryref":
				if href := attrValue(n, "href"); href != "" {
					u := resolveRef(baseURL, href)
					if u != "" && !seen[u] {
						seen[u] = true
						entries = append(entries, Entry{URL: u, Title: title})
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, title)
		}
	}
	walk(doc, "")

	return entries, nil
}
