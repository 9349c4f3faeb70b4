package price

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Parser converts Dutch-formatted currency fragments into integer cent
// amounts. The thousands separator is "." and the decimal separator is ",";
// a trailing ",-" marks a whole-euro amount ("650,-" is 650.00, not 650
// cents). Amounts outside the configured plausibility band are rejected so
// that years, SKU fragments and other page noise never surface as prices.
type Parser struct {
	minCents int64
	maxCents int64
	patterns []pricePattern
}

type pricePattern struct {
	re    *regexp.Regexp
	parse func(m []string) (int64, bool)
}

const (
	// DefaultMinCents and DefaultMaxCents bound plausible product prices
	// (€50 to €50,000).
	DefaultMinCents int64 = 5000
	DefaultMaxCents int64 = 5000000
)

func NewParser(minCents, maxCents int64) *Parser {
	if minCents <= 0 {
		minCents = DefaultMinCents
	}
	if maxCents <= minCents {
		maxCents = DefaultMaxCents
	}

	return &Parser{
		minCents: minCents,
		maxCents: maxCents,
		patterns: []pricePattern{
			{
				// €1.234,56
				re: regexp.MustCompile(`€\s?(\d{1,3})\.(\d{3}),(\d{2})`),
				parse: func(m []string) (int64, bool) {
					euros := mustInt(m[1] + m[2])
					cents := mustInt(m[3])
					return euros*100 + cents, true
				},
			},
			{
				// €1.234,-
				re: regexp.MustCompile(`€\s?(\d{1,3})\.(\d{3}),-`),
				parse: func(m []string) (int64, bool) {
					return mustInt(m[1]+m[2]) * 100, true
				},
			},
			{
				// €650,- or €650,00; a three-digit second group is a
				// thousands continuation, not cents.
				re: regexp.MustCompile(`€\s?(\d{1,4}),(\d{2,3})?-?`),
				parse: func(m []string) (int64, bool) {
					first := mustInt(m[1])
					switch len(m[2]) {
					case 0:
						// €650,-
						return first * 100, true
					case 2:
						// €650,00
						return first*100 + mustInt(m[2]), true
					default:
						// €1,234 with the comma as thousands separator
						return (first*1000 + mustInt(m[2])) * 100, true
					}
				},
			},
			{
				// €1.234 without a fraction part; rejected when cents
				// follow, the full format above owns those so one text
				// span never yields two prices.
				re: regexp.MustCompile(`€\s?(\d{1,3})\.(\d{3})(,\d)?`),
				parse: func(m []string) (int64, bool) {
					if m[3] != "" {
						return 0, false
					}
					return mustInt(m[1]+m[2]) * 100, true
				},
			},
			{
				// Bare €99; rejected when a separator with digits follows,
				// the more specific patterns above own those.
				re: regexp.MustCompile(`€\s?(\d{1,4})([.,]\d)?`),
				parse: func(m []string) (int64, bool) {
					if m[2] != "" {
						return 0, false
					}
					return mustInt(m[1]) * 100, true
				},
			},
		},
	}
}

// ParsePrice extracts the first plausible price from text. The second return
// value is false when no currency-marked amount within the plausibility band
// is present.
func (p *Parser) ParsePrice(text string) (int64, bool) {
	cleaned := normalize(text)

	for _, pat := range p.patterns {
		m := pat.re.FindStringSubmatch(cleaned)
		if m == nil {
			continue
		}
		cents, ok := pat.parse(m)
		if ok && p.inBounds(cents) {
			return cents, true
		}
	}

	return 0, false
}

// ExtractAllPrices applies the same parsing rules to every match in a block
// of text and returns the distinct results in ascending order.
func (p *Parser) ExtractAllPrices(text string) []int64 {
	cleaned := normalize(text)
	seen := make(map[int64]struct{})
	var prices []int64

	for _, pat := range p.patterns {
		for _, m := range pat.re.FindAllStringSubmatch(cleaned, -1) {
			cents, ok := pat.parse(m)
			if !ok || !p.inBounds(cents) {
				continue
			}
			if _, dup := seen[cents]; dup {
				continue
			}
			seen[cents] = struct{}{}
			prices = append(prices, cents)
		}
	}

	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	return prices
}

func (p *Parser) inBounds(cents int64) bool {
	return cents >= p.minCents && cents <= p.maxCents
}

var whitespace = regexp.MustCompile(`\s+`)

func normalize(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

func mustInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
