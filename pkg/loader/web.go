package loader

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/josinaldojr/doc-qa-rag/pkg/rag"
)

func (l *Loader) loadURL(ctx context.Context, rawURL string) ([]rag.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, wrapSource("build request "+rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, wrapSource("GET "+rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, sourceError("GET %s: status %d %s", rawURL, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes))
	if err != nil {
		return nil, wrapSource("read body "+rawURL, err)
	}

	var title, text string
	if isHTML(resp.Header.Get("Content-Type"), body) {
		title, text = extractMainText(string(body))
	} else {
		text = string(body)
	}

	text = cleanText(text)
	if text == "" {
		return nil, sourceError("no text extracted from %s", rawURL)
	}

	return []rag.Document{{
		Content: text,
		Source:  rawURL,
		Title:   cleanText(title),
		Metadata: map[string]string{
			"source":       rawURL,
			"content_type": resp.Header.Get("Content-Type"),
		},
	}}, nil
}

func isHTML(contentType string, body []byte) bool {
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			return mt == "text/html" || mt == "application/xhtml+xml"
		}
	}
	return strings.Contains(http.DetectContentType(body), "text/html")
}

// extractMainText returns the page title and its visible text, one text node
// per line, skipping scripts and styles.
func extractMainText(htmlStr string) (string, string) {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return "", ""
	}

	var title string
	var b strings.Builder
	var walk func(*html.Node, bool)

	walk = func(n *html.Node, skip bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template", "svg":
				skip = true
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				skip = true
			}
		}

		if n.Type == html.TextNode && !skip {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				b.WriteString(t)
				b.WriteString("\n")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skip)
		}
	}
	walk(doc, false)

	lines := strings.Split(b.String(), "\n")
	filtered := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if len(l) > 1 {
			filtered = append(filtered, l)
		}
	}
	return title, strings.Join(filtered, "\n")
}
