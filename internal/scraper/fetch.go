package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rvdberg/tweedekans-monitor/internal/models"
	"github.com/rvdberg/tweedekans-monitor/internal/parser"
)

// Fetcher retrieves raw page markup over plain HTTP with browser-like
// headers. It serves the fetch strategy, the model fallback and the
// companion variant check.
type Fetcher struct {
	client         *http.Client
	acceptLanguage string
	userAgent      string
}

func NewFetcher(timeout time.Duration, acceptLanguage string) *Fetcher {
	return &Fetcher{
		client:         &http.Client{Timeout: timeout},
		acceptLanguage: acceptLanguage,
		userAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	}
}

func (f *Fetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", f.acceptLanguage)
	req.Header.Set("Referer", "https://www.google.com/")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	return string(body), nil
}

// FetchStrategy is the lightweight second strategy: a plain HTTP fetch of
// the markup with the same pattern-based extraction the browser strategy
// uses.
type FetchStrategy struct {
	fetcher *Fetcher
	pages   *parser.PageParser
	logger  *slog.Logger
}

func NewFetchStrategy(fetcher *Fetcher, pages *parser.PageParser, logger *slog.Logger) *FetchStrategy {
	return &FetchStrategy{
		fetcher: fetcher,
		pages:   pages,
		logger:  logger.With("component", "fetch_strategy"),
	}
}

func (s *FetchStrategy) Name() string { return "fetch" }

func (s *FetchStrategy) Scrape(ctx context.Context, url string) (*models.ProductData, error) {
	html, err := s.fetcher.FetchHTML(ctx, url)
	if err != nil {
		return nil, err
	}

	return s.pages.Parse(html, url)
}
