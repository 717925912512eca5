package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var productTypes = map[string]bool{
	"Product":      true,
	"ProductGroup": true,
}

// OfferPriceFromHTML looks for a Product or ProductGroup annotation in the
// page's application/ld+json blocks and returns its offer price.
func OfferPriceFromHTML(html string) (float64, bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var (
		price float64
		found bool
	)
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &payload); err != nil {
			return true
		}
		price, found = offerPrice(payload)
		return !found
	})
	return price, found, nil
}

func offerPrice(v any) (float64, bool) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if p, ok := offerPrice(item); ok {
				return p, true
			}
		}
	case map[string]any:
		if graph, ok := t["@graph"]; ok {
			if p, ok := offerPrice(graph); ok {
				return p, true
			}
		}
		if !isProductType(t["@type"]) {
			return 0, false
		}
		if p, ok := priceFromOffers(t["offers"]); ok {
			return p, true
		}
		return priceValue(t["price"])
	}
	return 0, false
}

func isProductType(v any) bool {
	switch t := v.(type) {
	case string:
		return productTypes[t]
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && productTypes[s] {
				return true
			}
		}
	}
	return false
}

func priceFromOffers(v any) (float64, bool) {
	switch t := v.(type) {
	case map[string]any:
		if p, ok := priceValue(t["price"]); ok {
			return p, true
		}
		return priceValue(t["lowPrice"])
	case []any:
		for _, item := range t {
			if p, ok := priceFromOffers(item); ok {
				return p, true
			}
		}
	}
	return 0, false
}

func priceValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 {
			return 0, false
		}
		return Round2(t), true
	case string:
		p, err := ParseNumber(t)
		if err != nil || p < 0 {
			return 0, false
		}
		return Round2(p), true
	}
	return 0, false
}
