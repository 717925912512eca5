package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/maltedev/shelf-price-scraper/internal/extractor"
	"github.com/maltedev/shelf-price-scraper/internal/parser"
)

// Item keys produced by ProductSearch.
const (
	KeyID         = "id"
	KeyTitle      = "title"
	KeyBrand      = "brand"
	KeyCategory   = "category"
	KeyImage      = "image"
	KeyLink       = "link"
	KeyPackaging  = "packaging"
	KeyPrice      = "price"
	KeyPromoPrice = "promo_price"
	KeyWasPrice   = "was_price"
	KeyUnitPrice  = "unit_price"
	KeyAvailable  = "available"
	KeyPromoUntil = "promo_until"
)

type SearchConfig struct {
	Query string
	// Input holds the fixed search input variables; OffsetKey is set per page.
	Input     map[string]any
	OffsetKey string
	PageSize  int
}

// ProductSearch pages through a searchProducts GraphQL query by offset.
// Prices arrive as integer cents.
type ProductSearch struct {
	client *Client
	cfg    SearchConfig
	logger *slog.Logger
}

func NewProductSearch(client *Client, cfg SearchConfig) *ProductSearch {
	if cfg.OffsetKey == "" {
		cfg.OffsetKey = "offSet"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 24
	}
	return &ProductSearch{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "product_search"),
	}
}

type searchData struct {
	SearchProducts struct {
		Products []*product `json:"products"`
	} `json:"searchProducts"`
}

type product struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Brand    string `json:"brand"`
	Category string `json:"category"`
	Image    string `json:"image"`
	Link     string `json:"link"`
	Subtitle string `json:"subtitle"`
	Prices   *struct {
		Price        *int64 `json:"price"`
		PromoPrice   *int64 `json:"promoPrice"`
		PricePerUnit *struct {
			Price *int64 `json:"price"`
			Unit  string `json:"unit"`
		} `json:"pricePerUnit"`
	} `json:"prices"`
	Availability *struct {
		IsAvailable *bool `json:"isAvailable"`
	} `json:"availability"`
	Promotions []*struct {
		End *struct {
			DayShort   string `json:"dayShort"`
			Date       any    `json:"date"`
			MonthShort string `json:"monthShort"`
		} `json:"end"`
	} `json:"promotions"`
}

func (s *ProductSearch) FetchNext(ctx context.Context, offset int) ([]extractor.Node, bool, error) {
	input := make(map[string]any, len(s.cfg.Input)+1)
	for k, v := range s.cfg.Input {
		input[k] = v
	}
	input[s.cfg.OffsetKey] = offset

	var data searchData
	req := Request{Query: s.cfg.Query, Variables: map[string]any{"input": input}}
	if err := s.client.Do(ctx, req, &data); err != nil {
		return nil, false, fmt.Errorf("search page at offset %d: %w", offset, err)
	}

	products := data.SearchProducts.Products
	nodes := make([]extractor.Node, 0, len(products))
	for _, p := range products {
		if p == nil {
			continue
		}
		nodes = append(nodes, p.item())
	}

	s.logger.Debug("page fetched", "offset", offset, "products", len(products))
	return nodes, len(products) >= s.cfg.PageSize, nil
}

func (p *product) item() Item {
	it := Item{
		KeyID:        p.ID,
		KeyTitle:     p.Title,
		KeyBrand:     p.Brand,
		KeyCategory:  p.Category,
		KeyImage:     p.Image,
		KeyLink:      p.Link,
		KeyPackaging: p.Subtitle,
	}

	if p.Prices != nil {
		it[KeyPrice] = cents(p.Prices.Price)
		if promo := cents(p.Prices.PromoPrice); promo != "" {
			it[KeyPromoPrice] = promo
			it[KeyWasPrice] = it[KeyPrice]
			it[KeyPromoUntil] = p.promoUntil()
		}
		if ppu := p.Prices.PricePerUnit; ppu != nil && ppu.Price != nil {
			it[KeyUnitPrice] = strings.TrimSpace(cents(ppu.Price) + " " + ppu.Unit)
		}
	}

	if p.Availability != nil && p.Availability.IsAvailable != nil {
		it[KeyAvailable] = strconv.FormatBool(*p.Availability.IsAvailable)
	}
	return it
}

// promoUntil renders the end of the first promotion, e.g. "zo 12 okt".
func (p *product) promoUntil() string {
	if len(p.Promotions) == 0 || p.Promotions[0] == nil || p.Promotions[0].End == nil {
		return ""
	}
	end := p.Promotions[0].End

	var parts []string
	for _, v := range []string{end.DayShort, scalar(end.Date), end.MonthShort} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

func cents(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(parser.FromCents(*v), 'f', 2, 64)
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
