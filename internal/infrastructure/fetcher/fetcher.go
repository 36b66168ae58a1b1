// Package fetcher implements the default analysis.Fetcher: a single-request
// HTML fetch plus DOM walk, no browser automation. It is the Go-native
// replacement for the reference implementation's Playwright-driven crawler
// (original_source/backend/app/services/crawler_sync.go) — since this module
// only ever needs a static snapshot of one URL, not link-following crawl, a
// plain net/http GET plus golang.org/x/net/html traversal covers every field
// PageSnapshot requires.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"webscope/internal/core/domain/analysis"
)

const (
	defaultUserAgent = "WebscopeBot/1.0 (+https://webscope.invalid/bot)"
	maxBodyBytes      = 10 * 1024 * 1024
)

// HTTPFetcher is the default analysis.Fetcher implementation.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// New creates an HTTPFetcher. A zero-value client argument falls back to a
// client with no per-request timeout of its own; callers are expected to
// bound each Fetch call's duration via ctx instead (analysis.Fetcher's
// contract), so the client here carries no Timeout field.
func New(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTTPFetcher{client: client, userAgent: userAgent}
}

var _ analysis.Fetcher = (*HTTPFetcher)(nil)

// Fetch retrieves url and parses it into a PageSnapshot.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*analysis.PageSnapshot, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		return nil, fmt.Errorf("not html: content-type %q", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	loadTime := time.Since(start).Seconds()

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	snap := &analysis.PageSnapshot{
		URL:             url,
		HTML:            string(body),
		Headings:        make(map[int][]string),
		LoadTimeSeconds: loadTime,
	}
	snap.Meta.OpenGraphTags = make(map[string]string)

	walk(doc, snap)

	snap.Text = strings.Join(strings.Fields(snap.Text), " ")

	return snap, nil
}

func walk(n *html.Node, snap *analysis.PageSnapshot) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			if n.FirstChild != nil {
				snap.Meta.Title = strings.TrimSpace(n.FirstChild.Data)
			}
		case "meta":
			applyMetaTag(n, snap)
		case "link":
			applyLinkTag(n, snap)
		case "script":
			applyScriptTag(n, snap)
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(n.Data[1] - '0')
			if text := strings.TrimSpace(textContent(n)); text != "" {
				snap.Headings[level] = append(snap.Headings[level], text)
			}
		}
		if n.Data == "script" || n.Data == "style" {
			return // already consumed above; don't descend into their text
		}
	}
	if n.Type == html.TextNode {
		if trimmed := strings.TrimSpace(n.Data); trimmed != "" && !inScriptOrStyle(n) {
			snap.Text += trimmed + " "
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, snap)
	}
}

func inScriptOrStyle(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && (p.Data == "script" || p.Data == "style") {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
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

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func applyMetaTag(n *html.Node, snap *analysis.PageSnapshot) {
	content, hasContent := attr(n, "content")
	if name, ok := attr(n, "name"); ok {
		switch strings.ToLower(name) {
		case "description":
			snap.Meta.Description = content
		case "viewport":
			snap.Meta.ViewportPresent = true
		}
		return
	}
	if property, ok := attr(n, "property"); ok && hasContent && strings.HasPrefix(strings.ToLower(property), "og:") {
		snap.Meta.OpenGraphTags[property] = content
	}
}

func applyLinkTag(n *html.Node, snap *analysis.PageSnapshot) {
	rel, _ := attr(n, "rel")
	if strings.ToLower(rel) != "canonical" {
		return
	}
	if href, ok := attr(n, "href"); ok {
		snap.Meta.CanonicalURL = href
	}
}

func applyScriptTag(n *html.Node, snap *analysis.PageSnapshot) {
	typ, _ := attr(n, "type")
	if strings.ToLower(typ) != "application/ld+json" {
		return
	}
	if n.FirstChild == nil {
		return
	}
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(n.FirstChild.Data), &raw); err != nil {
		return
	}
	appendStructuredData(raw, snap)
}

// appendStructuredData handles a single JSON-LD object, a top-level array
// of them, and the {"@context":...,"@graph":[...]} wrapper object.
func appendStructuredData(raw json.RawMessage, snap *analysis.PageSnapshot) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		for _, item := range arr {
			appendStructuredData(item, snap)
		}
		return
	}
	appendStructuredDataEntry(raw, snap)
}

func appendStructuredDataEntry(raw json.RawMessage, snap *analysis.PageSnapshot) {
	var graph struct {
		Graph []json.RawMessage `json:"@graph"`
	}
	if err := json.Unmarshal(raw, &graph); err == nil && len(graph.Graph) > 0 {
		for _, item := range graph.Graph {
			appendStructuredData(item, snap)
		}
		return
	}

	var obj struct {
		Type string `json:"@type"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.Type == "" {
		return
	}
	snap.StructuredData = append(snap.StructuredData, analysis.StructuredDataEntry{Type: obj.Type})
}
