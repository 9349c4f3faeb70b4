package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// ErrNavigation is returned when a page could not be reached within the
// configured number of attempts.
var ErrNavigation = errors.New("navigation failed")

// Browser wraps a long-lived playwright instance reused across checks to
// amortize startup cost. It is not safe for concurrent navigation on the
// same page; callers create a page per check.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless           bool
	Timeout            time.Duration
	UserAgent          string
	ViewportWidth      int
	ViewportHeight     int
	AcceptLanguage     string
	TimezoneID         string
	Locale             string
	NetworkIdleTimeout time.Duration
	SettleDelay        time.Duration
}

func DefaultOptions() *Options {
	return &Options{
		Headless:           true,
		Timeout:            30 * time.Second,
		UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		ViewportWidth:      1920,
		ViewportHeight:     1080,
		AcceptLanguage:     "nl-NL,nl;q=0.9,en-US;q=0.8,en;q=0.7",
		TimezoneID:         "Europe/Amsterdam",
		Locale:             "nl-NL",
		NetworkIdleTimeout: 10 * time.Second,
		SettleDelay:        2 * time.Second,
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	b := &Browser{
		pw:     pw,
		opts:   opts,
		logger: slog.Default().With("component", "browser"),
	}

	if err := b.launch(); err != nil {
		pw.Stop()
		return nil, err
	}

	return b, nil
}

func (b *Browser) launch() error {
	browser, err := b.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &b.opts.Headless,
		Args: []string{
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-dev-shm-usage",
			"--disable-blink-features=AutomationControlled",
			"--disable-features=IsolateOrigins,site-per-process",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:  &b.opts.UserAgent,
		Locale:     &b.opts.Locale,
		TimezoneId: &b.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language":           b.opts.AcceptLanguage,
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
			"Upgrade-Insecure-Requests": "1",
		},
	})
	if err != nil {
		browser.Close()
		return fmt.Errorf("failed to create browser context: %w", err)
	}

	b.browser = browser
	b.context = context
	return nil
}

// IsConnected reports whether the underlying browser process is still alive.
func (b *Browser) IsConnected() bool {
	return b.browser != nil && b.browser.IsConnected()
}

// Reconnect tears down a dead browser and launches a fresh one. Used when a
// long-lived instance is found disconnected between checks.
func (b *Browser) Reconnect() error {
	b.logger.Info("relaunching disconnected browser")

	if b.context != nil {
		b.context.Close()
	}
	if b.browser != nil {
		b.browser.Close()
	}

	return b.launch()
}

func (b *Browser) NewPage() (playwright.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))
	return page, nil
}

// NavigateWithRetry navigates to a URL with a bounded number of attempts and
// a fixed backoff between them.
func (b *Browser) NavigateWithRetry(page playwright.Page, url string, maxRetries int, retryDelay time.Duration) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			time.Sleep(retryDelay)
		}

		_, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(b.opts.Timeout.Milliseconds())),
		})
		if err == nil {
			return nil
		}

		lastErr = err
		b.logger.Warn("navigation failed", "error", err, "attempt", i+1, "url", url)
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrNavigation, maxRetries, lastErr)
}

// WaitForSettle waits for the network to go idle, bounded by a timeout, then
// applies a fixed settle delay for late-rendering dynamic content. A network
// that never goes idle is not an error.
func (b *Browser) WaitForSettle(page playwright.Page) {
	err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(b.opts.NetworkIdleTimeout.Milliseconds())),
	})
	if err != nil {
		b.logger.Debug("network not idle, continuing", "error", err)
	}

	page.WaitForTimeout(float64(b.opts.SettleDelay.Milliseconds()))
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}
