package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rvdberg/tweedekans-monitor/internal/models"
	"github.com/rvdberg/tweedekans-monitor/internal/price"
)

// Selector chains shared by the static-markup extractor and the live-page
// extractor. Ordered most specific first.
var (
	NameSelectors = []string{
		"h1",
		`[data-test="product-title"]`,
		".product-title",
		"h1.page-title",
		`[class*="product-name"]`,
	}

	ImageSelectors = []string{
		"picture img",
		`[data-test="product-image"]`,
		".product-image img",
		`img[src*="product"]`,
		"main img",
	}

	PriceSelectors = []string{
		`[data-test="price"]`,
		`[data-testid="price"]`,
		".sales-price__current",
		".sales-price",
		`[class*="SalesPrice"]`,
		"div.product-order strong",
	}

	// MainContentSelector bounds the text-scan fallback to the product area.
	MainContentSelector = `main, [role="main"], .product-detail, .product-header`

	// DiscountLinkSelector matches anchors pointing at a second-chance
	// listing.
	DiscountLinkSelector = `a[href*="tweedekans"]`
)

var (
	productIDPattern = regexp.MustCompile(`/product(?:-tweedekans)?/(\d+)`)

	// Phrases Coolblue uses to advertise the second-chance program on a
	// regular listing page.
	discountPhrases = []string{
		"voordelige tweedekans",
		"tweede kans",
		"tweedekans",
	}
)

// PageParser extracts product data from static markup. It mirrors the
// extraction order used against live pages: explicit selectors first, text
// pattern scanning as a last resort.
type PageParser struct {
	prices  *price.Parser
	baseURL string
}

func New(prices *price.Parser, baseURL string) *PageParser {
	return &PageParser{
		prices:  prices,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// IsDiscountVariantURL reports whether the URL points at a second-chance
// listing rather than the canonical product page.
func IsDiscountVariantURL(url string) bool {
	return strings.Contains(url, "/product-tweedekans/")
}

// DiscountVariantURL derives the second-chance listing URL for the product
// behind a canonical URL. The second return value is false when no product
// id can be found in the URL.
func DiscountVariantURL(url string) (string, bool) {
	if IsDiscountVariantURL(url) {
		return url, true
	}
	m := productIDPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return strings.Replace(url, "/product/", "/product-tweedekans/", 1), true
}

// ExtractProductID pulls the numeric product id out of a listing URL.
func ExtractProductID(url string) (string, bool) {
	m := productIDPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ContainsDiscountPhrase reports whether text mentions the second-chance
// program.
func ContainsDiscountPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range discountPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// IsStaffImage filters out staff and avatar imagery by URL or alt text.
func IsStaffImage(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "employee") || strings.Contains(lower, "avatar")
}

// AbsoluteURL normalizes a possibly relative image URL against the site
// base.
func AbsoluteURL(base, src string) string {
	if strings.HasPrefix(src, "http") {
		return src
	}
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	if !strings.HasPrefix(src, "/") {
		src = "/" + src
	}
	return strings.TrimSuffix(base, "/") + src
}

// Parse extracts product data from raw markup. It never fails on missing
// fields; the caller decides whether the result is complete enough.
func (p *PageParser) Parse(html, pageURL string) (*models.ProductData, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}

	data := &models.ProductData{
		Name: p.ExtractName(doc),
	}

	if img := p.ExtractImage(doc); img != "" {
		data.ImageURL = &img
	}

	prices := p.ExtractPrices(doc)

	if IsDiscountVariantURL(pageURL) {
		AssignVariantPrices(data, prices)
		return data, nil
	}

	data.DiscountAvailable = p.DetectAvailability(doc)
	if len(prices) > 0 {
		// The first selector hit on a listing page is the current sale
		// price.
		data.OriginalPrice = &prices[0]
	}

	if data.DiscountAvailable {
		if cents, ok := p.discountPriceFromLink(doc); ok {
			data.DiscountPrice = &cents
		}
	}

	return data, nil
}

// ExtractName walks the selector chain and falls back to the page title
// stripped at the "|" separator.
func (p *PageParser) ExtractName(doc *goquery.Document) string {
	for _, sel := range NameSelectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text != "" {
			return text
		}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title != "" {
		return strings.TrimSpace(strings.SplitN(title, "|", 2)[0])
	}

	return models.UnknownProductName
}

// ExtractImage walks the image selector chain, skipping staff and avatar
// imagery, and absolutizes relative URLs against the configured host.
func (p *PageParser) ExtractImage(doc *goquery.Document) string {
	for _, sel := range ImageSelectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			src, ok := s.Attr("src")
			if !ok || src == "" {
				src, _ = s.Attr("data-src")
			}
			alt, _ := s.Attr("alt")

			if src == "" || IsStaffImage(src) || IsStaffImage(alt) {
				return true
			}
			found = src
			return false
		})

		if found != "" {
			return AbsoluteURL(p.baseURL, found)
		}
	}

	return ""
}

// ExtractPrices restricts the search surface to price-related selectors
// before falling back to scanning the main content area. Whole-page text is
// never scanned; navigation and footer noise produce too many false
// positives.
func (p *PageParser) ExtractPrices(doc *goquery.Document) []int64 {
	seen := make(map[int64]struct{})
	var prices []int64

	for _, sel := range PriceSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			cents, ok := p.prices.ParsePrice(s.Text())
			if !ok {
				return
			}
			if _, dup := seen[cents]; dup {
				return
			}
			seen[cents] = struct{}{}
			prices = append(prices, cents)
		})
	}

	if len(prices) > 0 {
		return prices
	}

	return p.prices.ExtractAllPrices(p.mainContentText(doc))
}

// DetectAvailability reports whether a regular listing page advertises a
// second-chance variant, either through a link or a marketing phrase.
func (p *PageParser) DetectAvailability(doc *goquery.Document) bool {
	if doc.Find(DiscountLinkSelector).Length() > 0 {
		return true
	}
	return ContainsDiscountPhrase(p.mainContentText(doc))
}

// AssignVariantPrices applies the price policy for a discount-variant page:
// the lowest distinct price is the discount price and the highest the
// original; a single price fills both fields. Availability is definitionally
// true on a variant page.
func AssignVariantPrices(data *models.ProductData, prices []int64) {
	data.DiscountAvailable = true

	if len(prices) == 0 {
		return
	}

	lowest, highest := prices[0], prices[0]
	for _, c := range prices[1:] {
		if c < lowest {
			lowest = c
		}
		if c > highest {
			highest = c
		}
	}

	data.DiscountPrice = &lowest
	data.OriginalPrice = &highest
}

func (p *PageParser) discountPriceFromLink(doc *goquery.Document) (int64, bool) {
	link := doc.Find(DiscountLinkSelector).First()
	if link.Length() == 0 {
		return 0, false
	}
	return p.prices.ParsePrice(link.Text())
}

// mainContentText returns the visible text of the main product area with
// script, style and SVG content stripped.
func (p *PageParser) mainContentText(doc *goquery.Document) string {
	clone := doc.Selection.Clone()
	clone.Find("script, style, svg, noscript").Remove()

	main := clone.Find(MainContentSelector).First()
	if main.Length() > 0 {
		return main.Text()
	}
	return clone.Find("body").Text()
}
