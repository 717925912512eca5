package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/shelf-price-scraper/internal/browser"
	"github.com/maltedev/shelf-price-scraper/internal/config"
	"github.com/maltedev/shelf-price-scraper/internal/crawler"
	"github.com/maltedev/shelf-price-scraper/internal/extractor"
	"github.com/maltedev/shelf-price-scraper/internal/feed"
	"github.com/maltedev/shelf-price-scraper/internal/ratelimit"
	"github.com/maltedev/shelf-price-scraper/internal/sources"
)

// SiteOpener opens live sessions: a headless browser for rendered sites and
// an HTTP feed client for feed sites.
type SiteOpener struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewSiteOpener(cfg *config.Config, logger *slog.Logger) *SiteOpener {
	if logger == nil {
		logger = slog.Default()
	}
	return &SiteOpener{cfg: cfg, logger: logger}
}

// SettingsFrom picks the run settings out of the configuration.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		MaxRounds:        cfg.Scraper.MaxRounds,
		UnitPriceCeiling: cfg.Scraper.UnitPriceCeiling,
		BatchSize:        cfg.Scraper.BatchSize,
	}
}

func (o *SiteOpener) Open(ctx context.Context, site sources.Site) (*Session, error) {
	switch site.Mode {
	case sources.ModeFeed:
		return o.openFeed(site), nil
	case sources.ModeGroups:
		return o.openGroups(site), nil
	case sources.ModeRendered:
		return o.openRendered(site)
	default:
		return nil, fmt.Errorf("source %s: unsupported mode %q", site.Name, site.Mode)
	}
}

func (o *SiteOpener) detailThrottle() ratelimit.RateLimiter {
	tb := ratelimit.NewTokenBucketRateLimiter(o.cfg.Scraper.DetailBurst, o.cfg.Scraper.DetailRate)
	tb.SetDelay(o.cfg.Scraper.DetailPause, 0)
	return tb
}

func (o *SiteOpener) retryPolicy() crawler.RetryPolicy {
	policy := crawler.DefaultRetryPolicy()
	if o.cfg.Scraper.MaxRetries > 0 {
		policy.MaxAttempts = o.cfg.Scraper.MaxRetries
	}
	if o.cfg.Scraper.RetryDelay > 0 {
		policy.BaseDelay = o.cfg.Scraper.RetryDelay
	}
	if o.cfg.Scraper.RetryMaxDelay > 0 {
		policy.MaxDelay = o.cfg.Scraper.RetryMaxDelay
	}
	return policy
}

func (o *SiteOpener) feedClient(site sources.Site) *feed.Client {
	return feed.NewClient(site.Endpoint, feed.ClientOptions{
		Timeout:   o.cfg.Feed.Timeout,
		UserAgent: o.cfg.Feed.UserAgent,
		Origin:    site.Origin,
	})
}

func (o *SiteOpener) pageLimiter() *ratelimit.AdaptiveRateLimiter {
	return ratelimit.NewAdaptiveRateLimiter(o.cfg.Scraper.PageDelayMin, o.cfg.Scraper.PageDelayMax)
}

func (o *SiteOpener) feedOptions() []extractor.Option {
	details := feed.NewHTTPDetailFetcher(o.cfg.Scraper.DetailTimeout, o.cfg.Scraper.DetailCacheTTL)
	return []extractor.Option{
		extractor.WithDetailFetcher(details),
		extractor.ThrottleDetails(o.detailThrottle()),
	}
}

func (o *SiteOpener) openFeed(site sources.Site) *Session {
	search := feed.NewProductSearch(o.feedClient(site), site.Search)

	pager := crawler.NewFeedPager(search, crawler.FeedPagerConfig{
		PageSize:       site.Search.PageSize,
		Retry:          o.retryPolicy(),
		MaxFailedPages: o.cfg.Scraper.MaxFailedPages,
		Limiter:        o.pageLimiter(),
	}, o.logger)

	return &Session{Pager: pager, Options: o.feedOptions()}
}

func (o *SiteOpener) openGroups(site sources.Site) *Session {
	groups := feed.NewWebGroupProducts(o.feedClient(site), site.Groups)

	pager := crawler.NewGroupPager(groups, crawler.GroupPagerConfig{
		First:          site.FirstGroup,
		Last:           site.LastGroup,
		Retry:          o.retryPolicy(),
		MaxFailedPages: o.cfg.Scraper.MaxFailedPages,
		Limiter:        o.pageLimiter(),
	}, o.logger)

	return &Session{Pager: pager, Options: o.feedOptions()}
}

func (o *SiteOpener) openRendered(site sources.Site) (*Session, error) {
	opts := browser.DefaultOptions()
	opts.Headless = o.cfg.Browser.Headless
	opts.Timeout = o.cfg.Browser.Timeout
	opts.ViewportWidth = o.cfg.Browser.ViewportWidth
	opts.ViewportHeight = o.cfg.Browser.ViewportHeight
	opts.AcceptLanguage = o.cfg.Browser.AcceptLanguage
	opts.TimezoneID = o.cfg.Browser.TimezoneID
	opts.Locale = o.cfg.Browser.Locale
	opts.StatePath = o.cfg.Browser.StatePath
	opts.ProxyServer = o.cfg.Browser.ProxyServer

	b, err := browser.New(opts, o.logger)
	if err != nil {
		return nil, err
	}

	listing := browser.NewListing(b, site.Listing, o.logger)

	return &Session{
		Pager: crawler.NewRenderedPager(listing),
		Options: []extractor.Option{
			extractor.WithDetailFetcher(browser.NewDetailFetcher(b)),
			extractor.ThrottleDetails(o.detailThrottle()),
		},
		Close: func() error {
			return errors.Join(listing.Close(), b.SaveState(), b.Close())
		},
	}, nil
}
