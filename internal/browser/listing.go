package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/maltedev/shelf-price-scraper/internal/extractor"
	"github.com/playwright-community/playwright-go"
)

var ErrNoCards = errors.New("no listing cards found")

type ListingConfig struct {
	StartURL          string
	CardSelectors     []string
	CookieSelectors   []string
	CookieButtonName  *regexp.Regexp
	LoadMoreSelectors []string
	CategorySelectors []string
	// ScrollRounds bounds the initial infinite scroll; it stops earlier once
	// the page height is stable twice in a row.
	ScrollRounds    int
	ScrollPause     time.Duration
	Settle          time.Duration
	NavigateRetries int
}

// Listing is a rendered product listing that grows in place. It satisfies
// crawler.RenderedSource.
type Listing struct {
	browser *Browser
	cfg     ListingConfig
	page    playwright.Page
	cards   playwright.Locator
	hints   map[string]string
	logger  *slog.Logger
}

func NewListing(b *Browser, cfg ListingConfig, logger *slog.Logger) *Listing {
	if cfg.ScrollPause <= 0 {
		cfg.ScrollPause = 1200 * time.Millisecond
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 600 * time.Millisecond
	}
	if cfg.NavigateRetries <= 0 {
		cfg.NavigateRetries = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listing{
		browser: b,
		cfg:     cfg,
		hints:   map[string]string{},
		logger:  logger.With("component", "listing"),
	}
}

func (l *Listing) Open(ctx context.Context) error {
	page, err := l.browser.NewPage()
	if err != nil {
		return err
	}
	l.page = page

	if err := l.browser.NavigateWithRetry(ctx, page, l.cfg.StartURL, l.cfg.NavigateRetries); err != nil {
		return err
	}

	if l.acceptCookies() {
		l.logger.Debug("cookie banner dismissed")
	}
	l.settle(l.cfg.Settle)
	l.infiniteScroll(ctx)
	l.settle(l.cfg.Settle)

	for _, selector := range l.cfg.CardSelectors {
		cand := page.Locator(selector)
		if count, err := cand.Count(); err == nil && count > 0 {
			l.cards = cand
			l.logger.Info("listing opened", "url", l.cfg.StartURL, "selector", selector, "cards", count)
			break
		}
	}
	if l.cards == nil {
		if len(l.cfg.CardSelectors) == 0 {
			return ErrNoCards
		}
		// Cards may still appear after the first load-more click.
		l.cards = page.Locator(l.cfg.CardSelectors[len(l.cfg.CardSelectors)-1])
	}

	if category := l.pageText(l.cfg.CategorySelectors); category != "" {
		l.hints[extractor.HintCategory] = category
	}
	return nil
}

func (l *Listing) CurrentEntries(ctx context.Context) ([]extractor.Node, error) {
	if l.cards == nil {
		return nil, ErrNoCards
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	count, err := l.cards.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count cards: %w", err)
	}

	timeout := float64(l.browser.opts.Timeout.Milliseconds())
	nodes := make([]extractor.Node, count)
	for i := range nodes {
		nodes[i] = NewLocatorNode(l.cards.Nth(i), l.hints, timeout)
	}
	return nodes, nil
}

// RevealMore scrolls to the bottom and clicks the first visible, enabled
// load-more control. It reports false when there is none.
func (l *Listing) RevealMore(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if _, err := l.page.Evaluate(`() => window.scrollTo(0, document.body.scrollHeight)`); err == nil {
		l.page.WaitForTimeout(400)
	}

	for _, selector := range l.cfg.LoadMoreSelectors {
		btn := l.page.Locator(selector).First()
		if count, err := btn.Count(); err != nil || count == 0 {
			continue
		}
		if visible, err := btn.IsVisible(); err != nil || !visible {
			continue
		}
		if disabled, err := btn.IsDisabled(); err == nil && disabled {
			continue
		}
		if err := btn.ScrollIntoViewIfNeeded(); err != nil {
			continue
		}
		if err := btn.Click(); err != nil {
			l.logger.Debug("load more click failed", "selector", selector, "error", err)
			continue
		}
		l.waitNetworkIdle(5000)
		l.settle(700 * time.Millisecond)
		return true, nil
	}
	return false, nil
}

func (l *Listing) Close() error {
	if l.page == nil {
		return nil
	}
	return l.page.Close()
}

func (l *Listing) acceptCookies() bool {
	for _, selector := range l.cfg.CookieSelectors {
		btn := l.page.Locator(selector).First()
		if visible, err := btn.IsVisible(); err != nil || !visible {
			continue
		}
		if err := btn.Click(); err != nil {
			continue
		}
		l.waitNetworkIdle(5000)
		l.settle(l.cfg.Settle)
		return true
	}

	if l.cfg.CookieButtonName == nil {
		return false
	}
	btn := l.page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: l.cfg.CookieButtonName}).First()
	if visible, err := btn.IsVisible(); err != nil || !visible {
		return false
	}
	if err := btn.Click(); err != nil {
		return false
	}
	l.waitNetworkIdle(5000)
	l.settle(l.cfg.Settle)
	return true
}

func (l *Listing) infiniteScroll(ctx context.Context) {
	var lastHeight float64
	same := 0
	for i := 0; i < l.cfg.ScrollRounds; i++ {
		if ctx.Err() != nil {
			return
		}

		raw, err := l.page.Evaluate(`() => (document.scrollingElement || document.body).scrollHeight`)
		if err != nil {
			l.settle(500 * time.Millisecond)
			continue
		}
		height, _ := raw.(float64)
		if h, ok := raw.(int); ok {
			height = float64(h)
		}

		if height == lastHeight {
			same++
			if same >= 2 {
				return
			}
		} else {
			same = 0
		}

		if _, err := l.page.Evaluate(`() => window.scrollTo(0, (document.scrollingElement || document.body).scrollHeight)`); err != nil {
			l.settle(500 * time.Millisecond)
			continue
		}
		l.settle(l.cfg.ScrollPause)
		l.waitNetworkIdle(3000)
		lastHeight = height
	}
}

func (l *Listing) pageText(selectors []string) string {
	for _, selector := range selectors {
		loc := l.page.Locator(selector).First()
		if count, err := loc.Count(); err != nil || count == 0 {
			continue
		}
		if text, err := loc.InnerText(); err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	return ""
}

func (l *Listing) waitNetworkIdle(timeoutMs float64) {
	_ = l.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(timeoutMs),
	})
}

func (l *Listing) settle(d time.Duration) {
	l.page.WaitForTimeout(float64(d.Milliseconds()))
}
