package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rvdberg/tweedekans-monitor/internal/models"
)

// ErrNoJSON indicates the model reply contained no parseable JSON object.
var ErrNoJSON = errors.New("no JSON object in model response")

// ChatClient is the subset of the OpenAI client the extractor needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Extractor asks a language model to pull structured product fields out of
// raw markup. It is invoked only when deterministic extraction leaves the
// price fields incomplete, and it never propagates failures: a model outage
// degrades to an empty result instead of aborting the check.
type Extractor struct {
	client      ChatClient
	model       string
	maxHTMLSize int
	timeout     time.Duration
	logger      *slog.Logger
}

type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxHTMLSize int
	Timeout     time.Duration
}

func New(opts Options, logger *slog.Logger) *Extractor {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}

	return NewWithClient(openai.NewClientWithConfig(cfg), opts, logger)
}

// NewWithClient wires an explicit chat client; tests use this to avoid any
// live model dependency.
func NewWithClient(client ChatClient, opts Options, logger *slog.Logger) *Extractor {
	if opts.MaxHTMLSize <= 0 {
		opts.MaxHTMLSize = 50000
	}

	return &Extractor{
		client:      client,
		model:       opts.Model,
		maxHTMLSize: opts.MaxHTMLSize,
		timeout:     opts.Timeout,
		logger:      logger.With("component", "llm_extractor"),
	}
}

// modelResult matches the JSON object the prompt instructs the model to
// return.
type modelResult struct {
	Name              string   `json:"name"`
	CurrentPrice      *float64 `json:"currentPrice"`
	DiscountedPrice   *float64 `json:"discountedPrice"`
	DiscountAvailable bool     `json:"discountAvailable"`
	ImageURL          *string  `json:"imageUrl"`
}

// Extract submits truncated markup for structured extraction. Errors from
// the model call or from JSON parsing are logged and converted into an empty
// ProductData; the returned error is always nil.
func (e *Extractor) Extract(ctx context.Context, url, html string) (*models.ProductData, error) {
	if len(html) > e.maxHTMLSize {
		html = html[:e.maxHTMLSize]
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "Extract product data from HTML. Return only valid JSON, no other text.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(url, html),
			},
		},
	})
	if err != nil {
		e.logger.Warn("model call failed", "url", url, "error", err)
		return &models.ProductData{}, nil
	}

	if len(resp.Choices) == 0 {
		e.logger.Warn("model returned no choices", "url", url)
		return &models.ProductData{}, nil
	}

	data, err := ParseResponse(resp.Choices[0].Message.Content)
	if err != nil {
		e.logger.Warn("failed to parse model response", "url", url, "error", err)
		return &models.ProductData{}, nil
	}

	return data, nil
}

func buildPrompt(url, html string) string {
	return fmt.Sprintf(`Extract product information from this Coolblue HTML page (%s).

EXTRACT:
1. Product name
2. Current price (main price, in euro cents, e.g. 65000 for 650 euro)
3. Discounted second-chance price (if present, in euro cents)
4. Whether a "Tweede Kans" (second-chance) offer is available (true/false)
5. Product image URL

PRICE RULES:
- A price shown as "650,-" is 650 euro
- The second-chance price appears after "Voordelige Tweedekans" text
- Use null when a field cannot be found

HTML:
%s

Return ONLY this JSON object and no other text:
{"name":"string","currentPrice":number or null,"discountedPrice":number or null,"discountAvailable":boolean,"imageUrl":"string or null"}`, url, html)
}

// ParseResponse locates the first balanced JSON object in a model reply
// (models emit preambles despite instructions) and normalizes it into a
// ProductData.
func ParseResponse(reply string) (*models.ProductData, error) {
	obj, err := firstJSONObject(reply)
	if err != nil {
		return nil, err
	}

	var result modelResult
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON in model response: %w", err)
	}

	data := &models.ProductData{
		Name:              result.Name,
		DiscountAvailable: result.DiscountAvailable,
	}
	if data.Name == "" {
		data.Name = models.UnknownProductName
	}

	if result.CurrentPrice != nil {
		cents := normalizeCents(*result.CurrentPrice)
		data.OriginalPrice = &cents
	}
	if result.DiscountedPrice != nil {
		cents := normalizeCents(*result.DiscountedPrice)
		data.DiscountPrice = &cents
	}
	if result.ImageURL != nil && *result.ImageURL != "" {
		data.ImageURL = result.ImageURL
	}

	return data, nil
}

// normalizeCents corrects for the model answering in whole euros despite the
// prompt. Plausible product prices in cents are at least four digits, so a
// value under 1000 is taken as euros.
func normalizeCents(v float64) int64 {
	if v < 1000 {
		return int64(v*100 + 0.5)
	}
	return int64(v + 0.5)
}

// firstJSONObject returns the first balanced top-level {...} block,
// respecting strings and escapes.
func firstJSONObject(s string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}

	return "", ErrNoJSON
}
