package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/shelf-price-scraper/internal/models"
	"github.com/maltedev/shelf-price-scraper/internal/parser"
	"golang.org/x/text/language"
)

var (
	ErrMissingIdentifier = errors.New("entry has no identifier")
	ErrMissingPrice      = errors.New("entry has no price")
)

const DefaultFallbackName = "Unknown product"

// Fields holds the ranked strategies for each logical field.
type Fields struct {
	ID            []Strategy
	Link          []Strategy
	Name          []Strategy
	Brand         []Strategy
	Price         []Strategy
	PreviousPrice []Strategy
	Packaging     []Strategy
	Promo         []Strategy
	PromoUntil    []Strategy
	Available     []Strategy
	Image         []Strategy
	Category      []Strategy
}

type Config struct {
	Source  string
	BaseURL string
	// IDPattern extracts the identifier from the detail link (first submatch).
	IDPattern *regexp.Regexp
	RequireID bool
	// SlugNames makes the humanized link slug take precedence over the entry's title.
	SlugNames        bool
	Language         language.Tag
	Acronyms         map[string]string
	SmallWords       []string
	FallbackName     string
	DefaultCategory  string
	UnitPriceCeiling float64
	Fields           Fields
}

// Extractor turns entry nodes into records. It holds no per-entry state.
type Extractor struct {
	cfg       Config
	humanizer *parser.SlugHumanizer
	pricer    *parser.UnitPricer
	details   DetailFetcher
	throttle  Waiter
	logger    *slog.Logger
}

type Option func(*Extractor)

// WithDetailFetcher enables the detail-page price tier.
func WithDetailFetcher(f DetailFetcher) Option {
	return func(e *Extractor) {
		e.details = f
	}
}

// ThrottleDetails makes every detail fetch wait on w first.
func ThrottleDetails(w Waiter) Option {
	return func(e *Extractor) {
		e.throttle = w
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

func New(cfg Config, opts ...Option) (*Extractor, error) {
	if cfg.Source == "" {
		return nil, fmt.Errorf("extractor: source is required")
	}
	if cfg.RequireID && cfg.IDPattern == nil && len(cfg.Fields.ID) == 0 {
		return nil, fmt.Errorf("extractor %s: identifier required but no way to derive it", cfg.Source)
	}
	if cfg.FallbackName == "" {
		cfg.FallbackName = DefaultFallbackName
	}

	e := &Extractor{
		cfg:       cfg,
		humanizer: parser.NewSlugHumanizer(cfg.Language, cfg.Acronyms, cfg.SmallWords),
		pricer:    parser.NewUnitPricer(cfg.UnitPriceCeiling),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "extractor", "source", cfg.Source)
	return e, nil
}

func (e *Extractor) Source() string {
	return e.cfg.Source
}

// Extract builds a record from n. Entries without a required identifier or
// without any price fail with ErrMissingIdentifier or ErrMissingPrice.
func (e *Extractor) Extract(ctx context.Context, n Node, capturedAt time.Time) (models.Record, error) {
	link := e.absolute(First(ctx, n, e.cfg.Fields.Link))

	id := First(ctx, n, e.cfg.Fields.ID)
	if id == "" {
		id = e.idFromLink(link)
	}
	if id == "" && e.cfg.RequireID {
		return models.Record{}, fmt.Errorf("%w: link %q", ErrMissingIdentifier, link)
	}

	price, err := e.price(ctx, n, link)
	if err != nil {
		return models.Record{}, err
	}

	rec := models.Record{
		Source:        e.cfg.Source,
		CapturedAt:    capturedAt,
		ExternalID:    id,
		Name:          e.name(ctx, n, link),
		Brand:         First(ctx, n, e.cfg.Fields.Brand),
		CurrentPrice:  price,
		PackagingText: First(ctx, n, e.cfg.Fields.Packaging),
		Category:      First(ctx, n, e.cfg.Fields.Category),
		PromoLabel:    First(ctx, n, e.cfg.Fields.Promo),
		PromoUntil:    First(ctx, n, e.cfg.Fields.PromoUntil),
		ImageRef:      e.absolute(First(ctx, n, e.cfg.Fields.Image)),
		DetailURL:     link,
	}
	if rec.Category == "" {
		if h, ok := n.(Hinter); ok {
			rec.Category = h.Hint(HintCategory)
		}
	}
	if rec.Category == "" {
		rec.Category = e.cfg.DefaultCategory
	}

	if prev, ok := FirstValue(ctx, n, e.cfg.Fields.PreviousPrice, parser.ExtractMoney); ok && prev > 0 {
		prev = parser.Round2(prev)
		rec.PreviousPrice = &prev
	}

	if avail, ok := FirstValue(ctx, n, e.cfg.Fields.Available, parseBool); ok {
		rec.Available = &avail
	}

	if up, ok := e.pricer.Derive(price, rec.PackagingText); ok {
		v := up.Value
		rec.UnitPrice = &v
		rec.UnitBase = string(up.Base)
	}

	return rec, nil
}

// price resolves the current price from markup strategies, then the entry's
// full text, then the detail page's structured data. The detail page is
// requested at most once.
func (e *Extractor) price(ctx context.Context, n Node, link string) (float64, error) {
	if p, ok := FirstValue(ctx, n, e.cfg.Fields.Price, parser.ExtractMoney); ok {
		return parser.Round2(p), nil
	}

	if text, err := n.FullText(ctx); err == nil {
		if p, ok := parser.ExtractMoney(text); ok {
			return parser.Round2(p), nil
		}
	} else {
		e.logger.Debug("full text lookup failed", "error", err, "link", link)
	}

	if e.details != nil && link != "" {
		if p, ok := e.detailPrice(ctx, link); ok {
			return p, nil
		}
	}

	return 0, fmt.Errorf("%w: link %q", ErrMissingPrice, link)
}

func (e *Extractor) detailPrice(ctx context.Context, link string) (float64, bool) {
	if e.throttle != nil {
		if err := e.throttle.Wait(ctx); err != nil {
			return 0, false
		}
	}

	html, err := e.details.FetchDetail(ctx, link)
	if err != nil {
		e.logger.Debug("detail fetch failed", "error", err, "link", link)
		return 0, false
	}

	p, ok, err := parser.OfferPriceFromHTML(html)
	if err != nil {
		e.logger.Debug("detail page unreadable", "error", err, "link", link)
		return 0, false
	}
	return p, ok
}

func (e *Extractor) name(ctx context.Context, n Node, link string) string {
	if e.cfg.SlugNames {
		if name := e.humanizer.Humanize(parser.SlugFromURL(link)); name != "" {
			return name
		}
	}
	if name := First(ctx, n, e.cfg.Fields.Name); name != "" {
		return strings.Join(strings.Fields(name), " ")
	}
	if name := e.humanizer.Humanize(parser.SlugFromURL(link)); name != "" {
		return name
	}
	return e.cfg.FallbackName
}

func (e *Extractor) idFromLink(link string) string {
	if e.cfg.IDPattern == nil || link == "" {
		return ""
	}
	m := e.cfg.IDPattern.FindStringSubmatch(link)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// absolute resolves raw against the base URL; protocol-relative references get https.
func (e *Extractor) absolute(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if ref.IsAbs() || e.cfg.BaseURL == "" {
		return raw
	}
	base, err := url.Parse(e.cfg.BaseURL)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}

func parseBool(s string) (bool, bool) {
	b, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return false, false
	}
	return b, true
}
