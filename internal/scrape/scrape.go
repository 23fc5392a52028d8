// Package scrape fetches job postings and extracts the description text.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"careercatalyst/internal/document"
)

const (
	DefaultTimeout = 10 * time.Second
	maxBodyBytes   = 5 << 20
	minSectionLen  = 50
	userAgent      = "Mozilla/5.0 (compatible; CareerCatalyst/1.0; +job-description-fetcher)"
)

// Selectors tried in order before falling back to the whole page.
var Selectors = []string{
	"#jobDescriptionText",
	".job-description",
	".jobDescription",
	".description",
}

var (
	ErrInvalidURL = errors.New("invalid job posting url")
	ErrNoContent  = errors.New("job posting has no readable text")
)

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("job posting returned status %d", e.Code)
}

type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	CacheSize  int
	Logger     *zerolog.Logger
}

type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	cache   *lru.Cache[string, string]
	logger  zerolog.Logger
}

func New(opts Options) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := &Fetcher{client: client, timeout: timeout, logger: zerolog.Nop()}
	if opts.Logger != nil {
		f.logger = *opts.Logger
	}
	if opts.CacheSize > 0 {
		f.cache, _ = lru.New[string, string](opts.CacheSize)
	}
	return f
}

// Fetch downloads rawURL and returns the job description text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}
	key := u.String()
	if f.cache != nil {
		if text, ok := f.cache.Get(key); ok {
			return text, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
	if err != nil {
		return "", fmt.Errorf("scrape: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("scrape: fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Code: resp.StatusCode}
	}

	text, err := Extract(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	f.logger.Debug().
		Str("host", u.Host).
		Int("chars", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("scrape: job posting fetched")
	if f.cache != nil {
		f.cache.Add(key, text)
	}
	return text, nil
}

// Extract returns the first known description block longer than 50
// characters, or the whole page text.
func Extract(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("scrape: parse html: %w", err)
	}
	doc.Find("script, style, noscript, iframe, svg").Remove()

	for _, sel := range Selectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := blockText(s)
			if len(text) > minSectionLen {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found, nil
		}
	}

	doc.Find("nav, header, footer").Remove()
	text := blockText(doc.Find("body"))
	if text == "" {
		text = blockText(doc.Selection)
	}
	if text == "" {
		return "", ErrNoContent
	}
	return text, nil
}

// blockText joins the text of s with one line per non-empty text run.
func blockText(s *goquery.Selection) string {
	var lines []string
	for _, n := range s.Nodes {
		sel := goquery.NewDocumentFromNode(n).Selection
		sel.Find("br").ReplaceWithHtml("\n")
		sel.Find("p, li, div, h1, h2, h3, h4, h5, h6, tr").Each(func(_ int, el *goquery.Selection) {
			el.AppendHtml("\n")
		})
		for _, l := range strings.Split(sel.Text(), "\n") {
			if l = strings.Join(strings.Fields(l), " "); l != "" {
				lines = append(lines, l)
			}
		}
	}
	return document.Normalize(strings.Join(lines, "\n"))
}
