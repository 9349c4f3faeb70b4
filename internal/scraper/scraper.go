package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rvdberg/tweedekans-monitor/internal/models"
	"github.com/rvdberg/tweedekans-monitor/internal/parser"
)

var (
	// ErrAllStrategiesFailed is the single user-visible scrape failure,
	// raised only when every strategy in the chain has failed.
	ErrAllStrategiesFailed = errors.New("all scrape strategies failed")
)

// Strategy is one extraction approach in the ordered chain. A strategy
// returns a possibly incomplete ProductData; it fails only when it could not
// reach the page at all.
type Strategy interface {
	Name() string
	Scrape(ctx context.Context, url string) (*models.ProductData, error)
}

// ModelExtractor is the AI-assisted fallback, invoked only when the
// deterministic strategies leave price fields incomplete.
type ModelExtractor interface {
	Extract(ctx context.Context, url, html string) (*models.ProductData, error)
}

// HTMLFetcher retrieves raw page markup for the fallback extractor and the
// companion variant check.
type HTMLFetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// Orchestrator sequences extraction strategies against a product URL and
// produces one normalized ProductData. Each strategy's failure is logged and
// swallowed; only exhaustion of the whole chain is surfaced.
type Orchestrator struct {
	strategies []Strategy
	pages      *parser.PageParser
	fetcher    HTMLFetcher
	fallback   ModelExtractor
	logger     *slog.Logger
}

func NewOrchestrator(strategies []Strategy, pages *parser.PageParser, fetcher HTMLFetcher, fallback ModelExtractor, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		strategies: strategies,
		pages:      pages,
		fetcher:    fetcher,
		fallback:   fallback,
		logger:     logger.With("component", "orchestrator"),
	}
}

// Scrape runs the strategy chain for one URL. Later strategies only fill
// fields the earlier ones left missing; a deterministically extracted value
// is never overwritten.
func (o *Orchestrator) Scrape(ctx context.Context, url string) (*models.ProductData, error) {
	var (
		result *models.ProductData
		errs   []error
	)

	for _, s := range o.strategies {
		data, err := s.Scrape(ctx, url)
		if err != nil {
			o.logger.Warn("scrape strategy failed", "strategy", s.Name(), "url", url, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}

		if result == nil {
			result = data
		} else {
			result.MergeMissing(data)
		}

		if result.HasName() && result.PricesComplete() {
			break
		}
	}

	if result == nil {
		return nil, fmt.Errorf("%w: %w", ErrAllStrategiesFailed, errors.Join(errs...))
	}

	if !result.PricesComplete() {
		o.applyModelFallback(ctx, url, result)
	}

	o.upgradeFromVariant(ctx, url, result)

	return result, nil
}

// applyModelFallback asks the model extractor for the fields deterministic
// extraction could not resolve. A model outage degrades to a no-op.
func (o *Orchestrator) applyModelFallback(ctx context.Context, url string, result *models.ProductData) {
	if o.fallback == nil || o.fetcher == nil {
		return
	}

	html, err := o.fetcher.FetchHTML(ctx, url)
	if err != nil {
		o.logger.Warn("fetch for model fallback failed", "url", url, "error", err)
		return
	}

	data, err := o.fallback.Extract(ctx, url, html)
	if err != nil {
		o.logger.Warn("model fallback failed", "url", url, "error", err)
		return
	}

	result.MergeMissing(data)
}

// upgradeFromVariant opportunistically checks the second-chance listing for
// the same product id. The canonical page may carry no textual hint even
// when the variant exists; a reachable variant page upgrades availability
// and price knowledge. Failures are expected (the variant 404s when not on
// offer) and never affect the scrape result.
func (o *Orchestrator) upgradeFromVariant(ctx context.Context, url string, result *models.ProductData) {
	if o.fetcher == nil || parser.IsDiscountVariantURL(url) {
		return
	}
	if result.DiscountAvailable && result.DiscountPrice != nil {
		return
	}

	variantURL, ok := parser.DiscountVariantURL(url)
	if !ok {
		return
	}

	html, err := o.fetcher.FetchHTML(ctx, variantURL)
	if err != nil {
		o.logger.Debug("variant page not reachable", "url", variantURL, "error", err)
		return
	}

	variant, err := o.pages.Parse(html, variantURL)
	if err != nil || variant.DiscountPrice == nil {
		return
	}

	result.DiscountAvailable = true
	if result.DiscountPrice == nil {
		result.DiscountPrice = variant.DiscountPrice
	}
	if result.OriginalPrice == nil {
		result.OriginalPrice = variant.OriginalPrice
	}
}
