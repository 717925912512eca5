package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/maltedev/shelf-price-scraper/internal/extractor"
)

// Item keys produced by WebGroupProducts on top of the search keys.
const (
	KeyDepartment = "department"
	KeyPromoLabel = "promo_label"
)

type WebGroupConfig struct {
	// Query is a format string taking the web group id and the store id.
	Query   string
	StoreID int
}

// WebGroupProducts lists the assortment of one web group per request. Groups
// are not paginated; prices arrive in euros.
type WebGroupProducts struct {
	client *Client
	cfg    WebGroupConfig
	logger *slog.Logger
}

func NewWebGroupProducts(client *Client, cfg WebGroupConfig) *WebGroupProducts {
	return &WebGroupProducts{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "webgroup_products"),
	}
}

type webGroupData struct {
	ListWebGroupProducts struct {
		ProductAssortment []*assortmentProduct `json:"productAssortment"`
	} `json:"listWebGroupProducts"`
}

type assortmentProduct struct {
	ProductID    any      `json:"productId"`
	NormalPrice  *float64 `json:"normalPrice"`
	OfferPrice   *float64 `json:"offerPrice"`
	ProductOffer *struct {
		TextPriceSign string `json:"textPriceSign"`
		StartDate     string `json:"startDate"`
		EndDate       string `json:"endDate"`
	} `json:"productOffer"`
	ProductInformation *struct {
		HeaderText string `json:"headerText"`
		Packaging  string `json:"packaging"`
		Brand      string `json:"brand"`
		Image      string `json:"image"`
		Department string `json:"department"`
		Webgroup   string `json:"webgroup"`
	} `json:"productInformation"`
}

func (s *WebGroupProducts) FetchGroup(ctx context.Context, group int) ([]extractor.Node, error) {
	req := Request{Query: fmt.Sprintf(s.cfg.Query, group, s.cfg.StoreID), Variables: map[string]any{}}

	var data webGroupData
	if err := s.client.Do(ctx, req, &data); err != nil {
		return nil, fmt.Errorf("web group %d: %w", group, err)
	}

	products := data.ListWebGroupProducts.ProductAssortment
	nodes := make([]extractor.Node, 0, len(products))
	for _, p := range products {
		if p == nil {
			continue
		}
		nodes = append(nodes, p.item())
	}

	s.logger.Debug("group fetched", "group", group, "products", len(nodes))
	return nodes, nil
}

// item maps a product. A positive offer price is current and the normal price
// becomes the previous price.
func (p *assortmentProduct) item() Item {
	it := Item{
		KeyID:    scalar(p.ProductID),
		KeyPrice: euros(p.NormalPrice),
	}

	if info := p.ProductInformation; info != nil {
		it[KeyTitle] = info.HeaderText
		it[KeyPackaging] = info.Packaging
		it[KeyBrand] = info.Brand
		it[KeyImage] = info.Image
		it[KeyCategory] = info.Webgroup
		it[KeyDepartment] = info.Department
	}

	if p.OfferPrice != nil && *p.OfferPrice > 0 {
		it[KeyPromoPrice] = euros(p.OfferPrice)
		it[KeyWasPrice] = it[KeyPrice]
	}
	if offer := p.ProductOffer; offer != nil {
		it[KeyPromoLabel] = strings.TrimSpace(offer.TextPriceSign)
		it[KeyPromoUntil] = offer.EndDate
	}
	return it
}

func euros(v *float64) string {
	if v == nil || *v <= 0 {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
