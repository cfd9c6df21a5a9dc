package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/sectionrag/internal/models"
)

func TestScraperConfig(t *testing.T) {
	config := ScraperConfig{
		BaseURL:        "https://example.com",
		MaxDepth:       5,
		RateLimit:      1.0,
		IgnorePatterns: []string{"/ignore/", "private"},
		Timeout:        10 * time.Second,
	}

	s, err := NewWithConfig(config, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, config.BaseURL, s.config.BaseURL)
	assert.Equal(t, config.MaxDepth, s.config.MaxDepth)
	assert.Equal(t, "example.com", s.baseHost)

	_, err = NewWithConfig(ScraperConfig{BaseURL: "not-absolute"}, zerolog.Nop())
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestShouldProcessURL(t *testing.T) {
	config := ScraperConfig{
		BaseURL:        "https://example.com",
		IgnorePatterns: []string{"/ignore/", "private"},
	}

	s, err := NewWithConfig(config, zerolog.Nop())
	require.NoError(t, err)

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com", true},
		{"https://example.com/docs/", true},
		{"https://example.com/docs/intro", true},
		{"https://example.com/page.html", true},
		{"https://example.com/ignore/page.html", false},
		{"https://example.com/private.html", false},
		{"https://other-domain.com/page.html", false},
		{"https://example.com/file.pdf", false},
		{"https://example.com/logo.png", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			result := s.shouldProcessURL(tt.url)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func newSite(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`
			<html>
				<head><title>Test Page</title><script>var tracking = 1;</script></head>
				<body>
					<nav>Navigation</nav>
					<main>
						<h1>Test Content</h1>
						<p>This is a test paragraph.</p>
						<a href="/page2.html">Link</a>
						<a href="#top">Top</a>
						<a href="/missing.html">Broken</a>
						<a href="/ignore/secret.html">Hidden</a>
						<a href="https://elsewhere.invalid/page.html">External</a>
					</main>
				</body>
			</html>
		`))
	})
	mux.HandleFunc("/page2.html", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`<html><body><article>Second   page
			text</article><a href="/">Home</a><a href="/page3.html">Deeper</a></body></html>`))
	})
	mux.HandleFunc("/page3.html", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`<html><head><title>Third</title></head><body>Third page</body></html>`))
	})
	mux.HandleFunc("/ignore/secret.html", func(w http.ResponseWriter, r *http.Request) {
		t.Error("ignored page was fetched")
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestScrapeWithMockServer(t *testing.T) {
	var hits atomic.Int32
	server := newSite(t, &hits)

	var progress []string
	s, err := NewWithConfig(ScraperConfig{
		BaseURL:        server.URL,
		MaxDepth:       1,
		RateLimit:      100,
		IgnorePatterns: []string{"/ignore/"},
		OnProgress:     func(u string) { progress = append(progress, u) },
	}, zerolog.Nop())
	require.NoError(t, err)

	sections, err := s.Scrape(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, sections, 2)

	first := sections[0]
	assert.Equal(t, server.URL, first.FilePath)
	assert.Equal(t, "Test Page", first.Title)
	assert.Contains(t, first.Content, "Test Content")
	assert.Contains(t, first.Content, "This is a test paragraph")
	assert.NotContains(t, first.Content, "Navigation")
	assert.NotContains(t, first.Content, "tracking")

	second := sections[1]
	assert.Equal(t, server.URL+"/page2.html", second.FilePath)
	assert.Equal(t, "page2.html", second.Title)
	assert.Equal(t, "Second page text", second.Content)

	// depth 1 stops before page3; the anchor and the home link are not refetched
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []string{server.URL, server.URL + "/page2.html", server.URL + "/missing.html"}, progress)
}

func TestScrapeDepth(t *testing.T) {
	var hits atomic.Int32
	server := newSite(t, &hits)

	s, err := NewWithConfig(ScraperConfig{BaseURL: server.URL, MaxDepth: 2, RateLimit: 100}, zerolog.Nop())
	require.NoError(t, err)

	sections, err := s.Scrape(context.Background(), server.URL)
	require.NoError(t, err)
	require.Len(t, sections, 3)
	assert.Equal(t, "Third", sections[2].Title)
}

func TestScrapeRootFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s, err := NewWithConfig(ScraperConfig{BaseURL: server.URL, RateLimit: 100}, zerolog.Nop())
	require.NoError(t, err)

	_, err = s.Scrape(context.Background(), server.URL)
	assert.ErrorContains(t, err, "received status code 500")
}

func TestScrapeCancelled(t *testing.T) {
	var hits atomic.Int32
	server := newSite(t, &hits)

	s, err := NewWithConfig(ScraperConfig{BaseURL: server.URL, RateLimit: 100}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Scrape(ctx, server.URL)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), hits.Load())
}
