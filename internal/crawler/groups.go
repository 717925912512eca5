package crawler

import (
	"context"
	"log/slog"

	"github.com/maltedev/shelf-price-scraper/internal/extractor"
)

// GroupSource returns every entry of one numbered group.
type GroupSource interface {
	FetchGroup(ctx context.Context, group int) ([]extractor.Node, error)
}

type GroupPagerConfig struct {
	First int
	Last  int
	Retry RetryPolicy
	// MaxFailedPages ends the walk after that many consecutive failed groups; 0 disables.
	MaxFailedPages int
	Limiter        Limiter
}

// GroupPager walks groups First..Last and presents their entries as one
// sequence, so window bases and cursors stay absolute entry indexes. Loading
// at an offset re-fetches the groups before it to find where it falls.
type GroupPager struct {
	src         GroupSource
	cfg         GroupPagerConfig
	logger      *slog.Logger
	current     Window
	group       int
	fetched     bool
	failed      int
	consecutive int
}

func NewGroupPager(src GroupSource, cfg GroupPagerConfig, logger *slog.Logger) *GroupPager {
	if cfg.First <= 0 {
		cfg.First = 1
	}
	if cfg.Last < cfg.First {
		cfg.Last = cfg.First
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupPager{
		src:    src,
		cfg:    cfg,
		logger: logger.With("component", "group_pager"),
	}
}

func (p *GroupPager) Load(ctx context.Context, offset int) (Window, error) {
	base := 0
	for group := p.cfg.First; ; group++ {
		entries, err := p.fetch(ctx, group)
		if err != nil {
			return Window{}, err
		}
		p.group = group
		p.current = Window{Base: base, Entries: entries}

		if base+len(entries) > offset || group >= p.cfg.Last {
			if group > p.cfg.First {
				p.logger.Info("resumed inside group", "group", group, "offset", offset, "base", base)
			}
			return p.current, nil
		}
		base += len(entries)
	}
}

func (p *GroupPager) Current(context.Context) (Window, error) {
	return p.current, nil
}

func (p *GroupPager) Advance(ctx context.Context) (bool, error) {
	if p.group >= p.cfg.Last {
		return false, nil
	}
	if p.cfg.MaxFailedPages > 0 && p.consecutive >= p.cfg.MaxFailedPages {
		p.logger.Warn("giving up on groups", "consecutive_failures", p.consecutive)
		return false, nil
	}

	base := p.current.Base + len(p.current.Entries)
	entries, err := p.fetch(ctx, p.group+1)
	if err != nil {
		return false, err
	}
	p.group++
	p.current = Window{Base: base, Entries: entries}
	return true, nil
}

// FailedPages is the number of groups that yielded nothing after retries.
func (p *GroupPager) FailedPages() int {
	return p.failed
}

// fetch returns nil entries without an error when the group still fails
// after retries; only cancellation is reported.
func (p *GroupPager) fetch(ctx context.Context, group int) ([]extractor.Node, error) {
	if p.fetched && p.cfg.Limiter != nil {
		if err := p.cfg.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	p.fetched = true

	var entries []extractor.Node
	err := p.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		entries, err = p.src.FetchGroup(ctx, group)
		return err
	})

	fb, _ := p.cfg.Limiter.(feedbackLimiter)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if fb != nil {
			fb.RecordError()
		}
		p.failed++
		p.consecutive++
		p.logger.Warn("group skipped", "group", group, "error", err)
		return nil, nil
	}

	if fb != nil {
		fb.RecordSuccess()
	}
	p.consecutive = 0
	return entries, nil
}
