package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/rvdberg/tweedekans-monitor/internal/browser"
	"github.com/rvdberg/tweedekans-monitor/internal/models"
	"github.com/rvdberg/tweedekans-monitor/internal/parser"
	"github.com/rvdberg/tweedekans-monitor/internal/price"
)

// BrowserStrategy renders the page in a real browser before extracting.
// Coolblue builds the pricing widget client-side, so this is the most
// reliable strategy and runs first.
type BrowserStrategy struct {
	browser       *browser.Browser
	prices        *price.Parser
	baseURL       string
	navRetries    int
	navRetryDelay time.Duration
	logger        *slog.Logger
}

func NewBrowserStrategy(b *browser.Browser, prices *price.Parser, baseURL string, navRetries int, navRetryDelay time.Duration, logger *slog.Logger) *BrowserStrategy {
	return &BrowserStrategy{
		browser:       b,
		prices:        prices,
		baseURL:       baseURL,
		navRetries:    navRetries,
		navRetryDelay: navRetryDelay,
		logger:        logger.With("component", "browser_strategy"),
	}
}

func (s *BrowserStrategy) Name() string { return "browser" }

func (s *BrowserStrategy) Scrape(ctx context.Context, url string) (*models.ProductData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !s.browser.IsConnected() {
		if err := s.browser.Reconnect(); err != nil {
			return nil, fmt.Errorf("browser relaunch failed: %w", err)
		}
	}

	page, err := s.browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	if err := s.browser.NavigateWithRetry(page, url, s.navRetries, s.navRetryDelay); err != nil {
		return nil, err
	}

	s.browser.WaitForSettle(page)

	data := &models.ProductData{
		Name: s.extractName(page),
	}

	if img := s.extractImage(page); img != "" {
		data.ImageURL = &img
	}

	prices := s.extractPrices(page)

	if parser.IsDiscountVariantURL(url) {
		parser.AssignVariantPrices(data, prices)
		return data, nil
	}

	data.DiscountAvailable = s.detectAvailability(page)
	if len(prices) > 0 {
		data.OriginalPrice = &prices[0]
	}

	if data.DiscountAvailable {
		if cents, ok := s.discountPriceFromLink(page); ok {
			data.DiscountPrice = &cents
		}
	}

	return data, nil
}

func (s *BrowserStrategy) extractName(page playwright.Page) string {
	for _, sel := range parser.NameSelectors {
		el, err := page.QuerySelector(sel)
		if err != nil || el == nil {
			continue
		}
		text, _ := el.TextContent()
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}

	if title, err := page.Title(); err == nil && title != "" {
		return strings.TrimSpace(strings.SplitN(title, "|", 2)[0])
	}

	return models.UnknownProductName
}

func (s *BrowserStrategy) extractImage(page playwright.Page) string {
	for _, sel := range parser.ImageSelectors {
		els, err := page.QuerySelectorAll(sel)
		if err != nil {
			continue
		}

		for _, el := range els {
			src, _ := el.GetAttribute("src")
			if src == "" {
				src, _ = el.GetAttribute("data-src")
			}
			alt, _ := el.GetAttribute("alt")

			if src == "" || parser.IsStaffImage(src) || parser.IsStaffImage(alt) {
				continue
			}
			return parser.AbsoluteURL(s.baseURL, src)
		}
	}

	return ""
}

// extractPrices reads only visible elements matched by the price selector
// chain, then falls back to scanning the main product area's text.
func (s *BrowserStrategy) extractPrices(page playwright.Page) []int64 {
	seen := make(map[int64]struct{})
	var prices []int64

	for _, sel := range parser.PriceSelectors {
		els, err := page.QuerySelectorAll(sel)
		if err != nil {
			continue
		}

		for _, el := range els {
			visible, err := el.IsVisible()
			if err != nil || !visible {
				continue
			}

			text, _ := el.TextContent()
			cents, ok := s.prices.ParsePrice(text)
			if !ok {
				continue
			}
			if _, dup := seen[cents]; dup {
				continue
			}
			seen[cents] = struct{}{}
			prices = append(prices, cents)
		}
	}

	if len(prices) > 0 {
		return prices
	}

	area, err := page.QuerySelector(parser.MainContentSelector)
	if err != nil || area == nil {
		return nil
	}
	text, err := area.TextContent()
	if err != nil {
		return nil
	}

	return s.prices.ExtractAllPrices(text)
}

func (s *BrowserStrategy) detectAvailability(page playwright.Page) bool {
	if link, err := page.QuerySelector(parser.DiscountLinkSelector); err == nil && link != nil {
		return true
	}

	area, err := page.QuerySelector(parser.MainContentSelector)
	if err != nil || area == nil {
		return false
	}
	text, err := area.TextContent()
	if err != nil {
		return false
	}

	return parser.ContainsDiscountPhrase(text)
}

func (s *BrowserStrategy) discountPriceFromLink(page playwright.Page) (int64, bool) {
	link, err := page.QuerySelector(parser.DiscountLinkSelector)
	if err != nil || link == nil {
		return 0, false
	}
	text, err := link.TextContent()
	if err != nil {
		return 0, false
	}
	return s.prices.ParsePrice(text)
}
