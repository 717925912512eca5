package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/shelf-price-scraper/internal/extractor"
	"github.com/maltedev/shelf-price-scraper/internal/models"
)

// DefaultMaxRounds bounds the number of advance attempts per run.
const DefaultMaxRounds = 120

var ErrEntryPanic = errors.New("entry extraction panicked")

// Window is the set of entries currently visible. Base is the absolute index
// of Entries[0] within the run's ordering.
type Window struct {
	Base    int
	Entries []extractor.Node
}

// Pager reveals entries. Load opens the source at an absolute offset, Advance
// asks for more and reports false when nothing more is available, and Current
// returns what is visible after an advance.
type Pager interface {
	Load(ctx context.Context, offset int) (Window, error)
	Current(ctx context.Context) (Window, error)
	Advance(ctx context.Context) (bool, error)
}

// EntryExtractor converts one entry into a record.
type EntryExtractor interface {
	Extract(ctx context.Context, n extractor.Node, capturedAt time.Time) (models.Record, error)
}

type State int

const (
	StateLoading State = iota
	StateExtracting
	StateDeciding
	StateAdvancing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateExtracting:
		return "extracting"
	case StateDeciding:
		return "deciding"
	case StateAdvancing:
		return "advancing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Options struct {
	Target    int
	MaxRounds int
	// StartOffset is the absolute index of the first entry to attempt.
	StartOffset int
	CapturedAt  time.Time
	// OnRecord receives every kept record with the absolute index of its entry.
	OnRecord   func(index int, rec models.Record)
	OnProgress func(models.Progress)
}

// Loop drives a pager and an extractor until the target is met, the source
// is exhausted, the round ceiling is hit or the context is cancelled.
type Loop struct {
	extractor EntryExtractor
	opts      Options
	logger    *slog.Logger
}

func NewLoop(ex EntryExtractor, opts Options, logger *slog.Logger) *Loop {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.StartOffset < 0 {
		opts.StartOffset = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		extractor: ex,
		opts:      opts,
		logger:    logger.With("component", "crawler"),
	}
}

type run struct {
	result     models.RunResult
	cursor     int
	capturedAt time.Time
}

// Run executes the loop. It never returns an error: failures end the run and
// are reported through StopReason, cancellation through Cancelled.
func (l *Loop) Run(ctx context.Context, p Pager) models.RunResult {
	r := &run{cursor: l.opts.StartOffset, capturedAt: l.opts.CapturedAt}
	if r.capturedAt.IsZero() {
		r.capturedAt = time.Now().UTC()
	}
	r.result.Records = make([]models.Record, 0)

	var (
		win    Window
		loaded bool
		err    error
	)

	state := StateLoading
	for state != StateDone {
		switch state {
		case StateLoading:
			if ctx.Err() != nil {
				l.stop(r, models.StopCancelled)
				state = StateDone
				continue
			}
			if loaded {
				win, err = p.Current(ctx)
			} else {
				win, err = p.Load(ctx, r.cursor)
				loaded = true
			}
			if err != nil {
				l.fail(ctx, r, "load", err)
				state = StateDone
				continue
			}
			state = StateExtracting

		case StateExtracting:
			l.extractWindow(ctx, r, win)
			state = StateDeciding

		case StateDeciding:
			switch {
			case l.opts.Target > 0 && r.result.Kept >= l.opts.Target:
				l.stop(r, models.StopTarget)
				state = StateDone
			case ctx.Err() != nil:
				l.stop(r, models.StopCancelled)
				state = StateDone
			case r.result.Rounds >= l.opts.MaxRounds:
				l.stop(r, models.StopMaxRounds)
				state = StateDone
			default:
				state = StateAdvancing
			}

		case StateAdvancing:
			more, err := p.Advance(ctx)
			r.result.Rounds++
			if err != nil {
				l.fail(ctx, r, "advance", err)
				state = StateDone
				continue
			}
			if !more {
				l.stop(r, models.StopExhausted)
				state = StateDone
				continue
			}
			state = StateLoading
		}
	}

	if fp, ok := p.(interface{ FailedPages() int }); ok {
		r.result.FailedPages = fp.FailedPages()
	}
	r.result.NextOffset = r.cursor

	l.logger.Info("run finished",
		"reason", r.result.StopReason,
		"kept", r.result.Kept,
		"processed", r.result.Processed,
		"skipped", r.result.Skipped,
		"rounds", r.result.Rounds,
		"next_offset", r.result.NextOffset)
	return r.result
}

// extractWindow attempts every entry of win at or beyond the cursor.
func (l *Loop) extractWindow(ctx context.Context, r *run, win Window) {
	if win.Base > r.cursor {
		r.cursor = win.Base
	}

	for i := r.cursor - win.Base; i < len(win.Entries); i++ {
		if l.opts.Target > 0 && r.result.Kept >= l.opts.Target {
			return
		}
		if ctx.Err() != nil {
			return
		}

		rec, err := l.attempt(ctx, r, win.Entries[i])
		r.cursor = win.Base + i + 1
		r.result.Processed++

		if err != nil {
			r.result.Skipped++
			if errors.Is(err, extractor.ErrMissingIdentifier) || errors.Is(err, extractor.ErrMissingPrice) {
				l.logger.Debug("entry skipped", "index", win.Base+i, "error", err)
			} else {
				l.logger.Warn("entry failed", "index", win.Base+i, "error", err)
			}
		} else {
			r.result.Kept++
			r.result.Records = append(r.result.Records, rec)
			if l.opts.OnRecord != nil {
				l.opts.OnRecord(win.Base+i, rec)
			}
		}

		if l.opts.OnProgress != nil {
			p := r.result.Progress()
			p.Cursor = r.cursor
			l.opts.OnProgress(p)
		}
	}
}

// attempt runs one extraction to completion even if ctx is cancelled meanwhile.
func (l *Loop) attempt(ctx context.Context, r *run, n extractor.Node) (rec models.Record, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("%w: %v", ErrEntryPanic, v)
		}
	}()
	return l.extractor.Extract(context.WithoutCancel(ctx), n, r.capturedAt)
}

func (l *Loop) stop(r *run, reason string) {
	r.result.StopReason = reason
	r.result.Cancelled = reason == models.StopCancelled
}

func (l *Loop) fail(ctx context.Context, r *run, step string, err error) {
	if ctx.Err() != nil {
		l.stop(r, models.StopCancelled)
		return
	}
	l.logger.Error("source failed", "step", step, "error", err)
	l.stop(r, models.StopFailed)
}
