package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
	<title>Acme Widgets</title>
	<meta name="description" content="Widgets for all your widget needs.">
	<meta name="viewport" content="width=device-width, initial-scale=1">
	<meta property="og:title" content="Acme Widgets">
	<meta property="og:description" content="Widgets galore">
	<link rel="canonical" href="https://acme.example/widgets">
	<script type="application/ld+json">{"@type": "Organization", "name": "Acme"}</script>
</head>
<body>
	<h1>Acme Widgets</h1>
	<h2>About Us</h2>
	<p>We make the best widgets in town.</p>
	<script>var hidden = "should not appear in text";</script>
</body>
</html>`

func newTestServer(t *testing.T, status int, contentType, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestFetchParsesMetaHeadingsAndStructuredData(t *testing.T) {
	server := newTestServer(t, http.StatusOK, "text/html; charset=utf-8", samplePage)
	defer server.Close()

	f := New(nil, "")
	snap, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "Acme Widgets", snap.Meta.Title)
	assert.Equal(t, "Widgets for all your widget needs.", snap.Meta.Description)
	assert.True(t, snap.Meta.ViewportPresent)
	assert.Equal(t, "https://acme.example/widgets", snap.Meta.CanonicalURL)
	assert.Equal(t, "Acme Widgets", snap.Meta.OpenGraphTags["og:title"])
	assert.Equal(t, []string{"Acme Widgets"}, snap.Headings[1])
	assert.Equal(t, []string{"About Us"}, snap.Headings[2])
	require.Len(t, snap.StructuredData, 1)
	assert.Equal(t, "Organization", snap.StructuredData[0].Type)
	assert.Contains(t, snap.Text, "We make the best widgets in town.")
	assert.NotContains(t, snap.Text, "should not appear in text")
	assert.Greater(t, snap.LoadTimeSeconds, 0.0)
}

func TestFetchNonHTMLContentTypeFails(t *testing.T) {
	server := newTestServer(t, http.StatusOK, "application/json", `{}`)
	defer server.Close()

	f := New(nil, "")
	_, err := f.Fetch(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestFetchNonSuccessStatusFails(t *testing.T) {
	server := newTestServer(t, http.StatusInternalServerError, "text/html", "boom")
	defer server.Close()

	f := New(nil, "")
	_, err := f.Fetch(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestFetchRespectsContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(samplePage))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	f := New(nil, "")
	_, err := f.Fetch(ctx, server.URL)
	assert.Error(t, err)
}

func TestFetchHandlesTopLevelArrayStructuredData(t *testing.T) {
	page := `<html><head><script type="application/ld+json">[{"@type":"WebSite"},{"@type":"BreadcrumbList"}]</script></head><body><h1>x</h1></body></html>`
	server := newTestServer(t, http.StatusOK, "text/html", page)
	defer server.Close()

	f := New(nil, "")
	snap, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, snap.StructuredData, 2)
	assert.Equal(t, "WebSite", snap.StructuredData[0].Type)
	assert.Equal(t, "BreadcrumbList", snap.StructuredData[1].Type)
}

func TestFetchHandlesGraphKeyedStructuredData(t *testing.T) {
	page := `<html><head><script type="application/ld+json">{"@context":"https://schema.org","@graph":[{"@type":"WebSite"},{"@type":"BreadcrumbList"}]}</script></head><body><h1>x</h1></body></html>`
	server := newTestServer(t, http.StatusOK, "text/html", page)
	defer server.Close()

	f := New(nil, "")
	snap, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, snap.StructuredData, 2)
	assert.Equal(t, "WebSite", snap.StructuredData[0].Type)
	assert.Equal(t, "BreadcrumbList", snap.StructuredData[1].Type)
}
