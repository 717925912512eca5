package crawler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/shelf-price-scraper/internal/extractor"
)

// RenderedSource is a rendered listing that grows in place, for example via
// infinite scroll or a "load more" button.
type RenderedSource interface {
	Open(ctx context.Context) error
	CurrentEntries(ctx context.Context) ([]extractor.Node, error)
	RevealMore(ctx context.Context) (bool, error)
}

type renderedPager struct {
	src RenderedSource
}

// NewRenderedPager exposes a RenderedSource as a Pager. All entries live in
// one growing window, so resuming re-reveals entries up to the offset and the
// loop skips them.
func NewRenderedPager(src RenderedSource) Pager {
	return &renderedPager{src: src}
}

func (p *renderedPager) Load(ctx context.Context, _ int) (Window, error) {
	if err := p.src.Open(ctx); err != nil {
		return Window{}, fmt.Errorf("failed to open listing: %w", err)
	}
	return p.Current(ctx)
}

func (p *renderedPager) Current(ctx context.Context) (Window, error) {
	entries, err := p.src.CurrentEntries(ctx)
	if err != nil {
		return Window{}, fmt.Errorf("failed to read entries: %w", err)
	}
	return Window{Base: 0, Entries: entries}, nil
}

func (p *renderedPager) Advance(ctx context.Context) (bool, error) {
	return p.src.RevealMore(ctx)
}

// FeedSource returns the page of entries starting at an absolute offset.
type FeedSource interface {
	FetchNext(ctx context.Context, offset int) ([]extractor.Node, bool, error)
}

// Limiter paces requests to a source.
type Limiter interface {
	Wait(ctx context.Context) error
}

type feedbackLimiter interface {
	RecordSuccess()
	RecordError()
}

type FeedPagerConfig struct {
	// PageSize is how far the offset moves past a page that could not be fetched.
	PageSize int
	Retry    RetryPolicy
	// MaxFailedPages ends the feed after that many consecutive failed pages; 0 disables.
	MaxFailedPages int
	Limiter        Limiter
}

// FeedPager pages through an offset-based feed. A page that still fails after
// the retry policy is exhausted yields an empty window and the pager moves on.
type FeedPager struct {
	src         FeedSource
	cfg         FeedPagerConfig
	logger      *slog.Logger
	current     Window
	next        int
	hasMore     bool
	fetched     bool
	failed      int
	consecutive int
}

func NewFeedPager(src FeedSource, cfg FeedPagerConfig, logger *slog.Logger) *FeedPager {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 24
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedPager{
		src:    src,
		cfg:    cfg,
		logger: logger.With("component", "feed_pager"),
	}
}

func (p *FeedPager) Load(ctx context.Context, offset int) (Window, error) {
	if err := p.fetch(ctx, offset); err != nil {
		return Window{}, err
	}
	return p.current, nil
}

func (p *FeedPager) Current(context.Context) (Window, error) {
	return p.current, nil
}

func (p *FeedPager) Advance(ctx context.Context) (bool, error) {
	if !p.hasMore {
		return false, nil
	}
	if p.cfg.MaxFailedPages > 0 && p.consecutive >= p.cfg.MaxFailedPages {
		p.logger.Warn("giving up on feed", "consecutive_failures", p.consecutive)
		return false, nil
	}
	if err := p.fetch(ctx, p.next); err != nil {
		return false, err
	}
	return true, nil
}

// FailedPages is the number of pages that yielded nothing after retries.
func (p *FeedPager) FailedPages() int {
	return p.failed
}

func (p *FeedPager) fetch(ctx context.Context, offset int) error {
	if p.fetched && p.cfg.Limiter != nil {
		if err := p.cfg.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	p.fetched = true

	var (
		entries []extractor.Node
		hasMore bool
	)
	err := p.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		entries, hasMore, err = p.src.FetchNext(ctx, offset)
		if err != nil {
			p.logger.Debug("page fetch attempt failed", "offset", offset, "error", err)
		}
		return err
	})

	fb, _ := p.cfg.Limiter.(feedbackLimiter)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if fb != nil {
			fb.RecordError()
		}
		p.failed++
		p.consecutive++
		p.logger.Warn("page skipped", "offset", offset, "error", err)
		p.current = Window{Base: offset}
		p.next = offset + p.cfg.PageSize
		p.hasMore = true
		return nil
	}

	if fb != nil {
		fb.RecordSuccess()
	}
	p.consecutive = 0
	p.current = Window{Base: offset, Entries: entries}
	step := len(entries)
	if step == 0 {
		hasMore = false
	}
	p.next = offset + step
	p.hasMore = hasMore
	return nil
}
