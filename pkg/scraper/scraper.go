package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/xhad/sectionrag/internal/models"
)

type ScraperConfig struct {
	BaseURL           string
	MaxDepth          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	OnProgress        func(url string)
}

// Scraper crawls pages of one host and turns each into a section keyed by
// its URL.
type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	visited  map[string]bool
	limiter  *rate.Limiter
	baseHost string
	logger   zerolog.Logger
}

func NewWithConfig(config ScraperConfig, logger zerolog.Logger) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 3
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, &models.ValidationError{Field: "base_url", Message: err.Error()}
	}
	if parsedURL.Host == "" {
		return nil, &models.ValidationError{Field: "base_url", Message: "must be an absolute URL"}
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
		logger:   logger,
	}, nil
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	// Check if URL is from the same host
	if parsedURL.Host != s.baseHost {
		return false
	}

	// Check extensions. The empty extension only matches extensionless paths.
	path := strings.ToLower(parsedURL.Path)
	last := path[strings.LastIndex(path, "/")+1:]
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if allowedExt == "" {
			if !strings.Contains(last, ".") {
				validExt = true
				break
			}
			continue
		}
		if strings.HasSuffix(path, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	// Check ignore patterns
	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

func cleanContent(content string) string {
	// Remove extra whitespace
	content = strings.Join(strings.Fields(content), " ")

	// Remove common noise
	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

func extractMainContent(doc *goquery.Document) string {
	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	doc.Find("script, style, noscript").Remove()

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if strings.TrimSpace(content) == "" {
		content = doc.Find("body").Text()
	}

	return cleanContent(content)
}

// pageTitle prefers the document title and falls back to the URL path.
func pageTitle(doc *goquery.Document, u *url.URL) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return strings.Join(strings.Fields(title), " ")
	}
	if path := strings.Trim(u.Path, "/"); path != "" {
		return path
	}
	return u.Host
}

// Scrape crawls from urlStr down to MaxDepth links and returns one section
// per page with text. Only a failure on urlStr itself is returned; broken
// links below it are logged and skipped.
func (s *Scraper) Scrape(ctx context.Context, urlStr string) ([]models.Section, error) {
	s.visited = make(map[string]bool)

	var sections []models.Section
	err := s.scrapeRecursive(ctx, normalize(urlStr), 0, &sections)
	return sections, err
}

func (s *Scraper) scrapeRecursive(ctx context.Context, urlStr string, depth int, sections *[]models.Section) error {
	if depth > s.config.MaxDepth || s.visited[urlStr] {
		return nil
	}

	if !s.shouldProcessURL(urlStr) {
		return nil
	}

	s.visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	doc, pageURL, err := s.fetch(ctx, urlStr)
	if err != nil {
		return err
	}

	content := extractMainContent(doc)
	if content != "" {
		*sections = append(*sections, models.Section{
			FilePath: urlStr,
			Title:    pageTitle(doc, pageURL),
			Content:  content,
		})
	} else {
		s.logger.Debug().Str("url", urlStr).Msg("page has no text, skipping")
	}

	// Find and follow links
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		if ctx.Err() != nil {
			return
		}

		href, exists := selection.Attr("href")
		if !exists {
			return
		}

		link, err := url.Parse(href)
		if err != nil {
			s.logger.Warn().Err(err).Str("href", href).Msg("error parsing URL")
			return
		}

		next := normalize(pageURL.ResolveReference(link).String())
		if err := s.scrapeRecursive(ctx, next, depth+1, sections); err != nil {
			s.logger.Warn().Err(err).Str("url", next).Msg("error scraping URL")
		}
	})

	return ctx.Err()
}

func (s *Scraper) fetch(ctx context.Context, urlStr string) (*goquery.Document, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return doc, resp.Request.URL, nil
}

// normalize drops the fragment so anchors on one page are fetched once.
func normalize(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return urlStr
	}
	u.Fragment = ""
	return u.String()
}
