package sources

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/maltedev/shelf-price-scraper/internal/browser"
	"github.com/maltedev/shelf-price-scraper/internal/extractor"
	"github.com/maltedev/shelf-price-scraper/internal/feed"
	"github.com/maltedev/shelf-price-scraper/internal/parser"
	"golang.org/x/text/language"
)

var ErrUnknownSource = errors.New("unknown source")

type Mode string

const (
	ModeRendered Mode = "rendered"
	ModeFeed     Mode = "feed"
	// ModeGroups walks a numbered range of product groups.
	ModeGroups Mode = "groups"
)

// Site describes how to reach one catalog and how to read its entries.
type Site struct {
	Name      string
	Mode      Mode
	Extractor extractor.Config

	// Rendered mode.
	Listing browser.ListingConfig

	// Feed and groups mode.
	Endpoint string
	Origin   string
	Search   feed.SearchConfig

	// Groups mode.
	Groups     feed.WebGroupConfig
	FirstGroup int
	LastGroup  int
}

var registry = map[string]func() Site{
	"ah":    AlbertHeijn,
	"dirk":  Dirk,
	"jumbo": Jumbo,
}

// Names lists the registered sources in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Lookup(name string) (Site, error) {
	build, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Site{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return build(), nil
}

var (
	ahCardSelectors = []string{
		`article:has([data-test*="product"])`,
		`[data-test*="product-card"]`,
		`[data-test*="product"] [data-test*="card"]`,
		`li:has([data-test*="product"])`,
		`article[class*="product"], div[class*="product-card"]`,
	}
	ahNameSelectors = []string{
		`[data-test*="title"]`,
		`[data-test*="card-title"]`,
		`a[href*="/product"] h3, a[href*="/product"] h4, h3, h4`,
	}
	ahPriceSelectors = []string{
		`[data-test*="price"]:has-text("€")`,
		`.product-price:has-text("€")`,
		`span:has-text("€")`,
		`[class*="price"]`,
		`[data-test*="price"]`,
	}
	ahWasPriceSelectors = []string{
		`[data-test*="was-price"]`,
		`.was-price, .old-price, [class*="old"]`,
	}
	ahUnitSelectors = []string{
		`[data-test*="unit-size"]`,
		`.unit-size, .uom, [class*="unit"]`,
		`small:has-text("g"), small:has-text("ml"), small:has-text("l"), small:has-text("kg")`,
	}
	ahLinkSelectors  = []string{`a[href*="/product"]`}
	ahImageSelectors = []string{`img[src*="ahstatic"], img[loading][src]`, `img`}
	ahPromoSelectors = []string{
		`[data-test*="promo"], [data-test*="badge"], .badge`,
		`span:has-text("Bonus"), span:has-text("%"), span:has-text("2e")`,
	}
	ahBreadcrumbSelectors = []string{
		`[aria-label*="breadcrumb"] .active`,
		`nav[aria-label*="breadcrumb"] li:last-child`,
	}
	ahLoadMoreSelectors = []string{
		`button:has-text("meer resultaten")`,
		`button:has-text("Meer resultaten")`,
		`button:has-text("meer laden")`,
		`button:has-text("Meer laden")`,
		`button:has-text("toon meer")`,
		`button:has-text("Toon meer")`,
		`button:has-text("volgende")`,
		`button:has-text("Volgende")`,
		`[data-test*="load-more"]`,
		`[data-testid*="load-more"]`,
	}
	cookieSelectors = []string{
		`button:has-text("Accepteer")`,
		`button:has-text("Akkoord")`,
		`button:has-text("Alles accepteren")`,
		`button:has-text("Alle cookies")`,
		`[aria-label*="cookies"][role="button"]`,
	}
)

// AlbertHeijn reads the rendered search listing. Names come from the product
// URL slug, which is more stable than the card title.
func AlbertHeijn() Site {
	acronyms := make(map[string]string, len(parser.DefaultAcronyms))
	for k, v := range parser.DefaultAcronyms {
		acronyms[k] = v
	}

	return Site{
		Name: "ah",
		Mode: ModeRendered,
		Extractor: extractor.Config{
			Source:     "ah",
			BaseURL:    "https://www.ah.nl",
			IDPattern:  regexp.MustCompile(`/product/([^/?#]+)`),
			RequireID:  true,
			SlugNames:  true,
			Language:   language.Dutch,
			Acronyms:   acronyms,
			SmallWords: parser.DefaultSmallWords,
			Fields: extractor.Fields{
				Link:          []extractor.Strategy{extractor.Attr("href", ahLinkSelectors...)},
				Name: []extractor.Strategy{
					extractor.Text(ahNameSelectors...),
					extractor.Attr("title", ahLinkSelectors...),
				},
				Price:         []extractor.Strategy{extractor.Text(ahPriceSelectors...)},
				PreviousPrice: []extractor.Strategy{extractor.Text(ahWasPriceSelectors...)},
				Packaging:     []extractor.Strategy{extractor.Text(ahUnitSelectors...)},
				Promo:         []extractor.Strategy{extractor.Text(ahPromoSelectors...)},
				Image: []extractor.Strategy{
					extractor.Attr("src", ahImageSelectors...),
					extractor.Attr("data-src", ahImageSelectors...),
				},
			},
		},
		Listing: browser.ListingConfig{
			StartURL:          "https://www.ah.nl/zoeken",
			CardSelectors:     ahCardSelectors,
			CookieSelectors:   cookieSelectors,
			CookieButtonName:  regexp.MustCompile(`(?i)cookies|accepteer|akkoord`),
			LoadMoreSelectors: ahLoadMoreSelectors,
			CategorySelectors: ahBreadcrumbSelectors,
			ScrollRounds:      20,
			ScrollPause:       1200 * time.Millisecond,
			Settle:            600 * time.Millisecond,
			NavigateRetries:   3,
		},
	}
}

const jumboQuery = `query SearchProducts($input: ProductSearchInput!) {
  searchProducts(input: $input) {
    products {
      id: sku
      title
      brand
      subtitle: packSizeDisplay
      link
      category: rootCategory
      image
      prices: price {
        price
        promoPrice
        pricePerUnit {
          price
          unit
        }
      }
      availability {
        isAvailable
      }
      promotions {
        start { dayShort date monthShort }
        end { dayShort date monthShort }
      }
    }
  }
}`

// Jumbo reads the GraphQL product search in offset pages. Prices arrive in
// cents; during a promotion the promo price is current and the regular price
// becomes the previous price.
func Jumbo() Site {
	return Site{
		Name: "jumbo",
		Mode: ModeFeed,
		Extractor: extractor.Config{
			Source:    "jumbo",
			BaseURL:   "https://www.jumbo.com",
			RequireID: true,
			Language:  language.Dutch,
			Fields: extractor.Fields{
				ID:            []extractor.Strategy{extractor.Text(feed.KeyID)},
				Link:          []extractor.Strategy{extractor.Text(feed.KeyLink)},
				Name:          []extractor.Strategy{extractor.Text(feed.KeyTitle)},
				Brand:         []extractor.Strategy{extractor.Text(feed.KeyBrand)},
				Price:         []extractor.Strategy{extractor.Text(feed.KeyPromoPrice), extractor.Text(feed.KeyPrice)},
				PreviousPrice: []extractor.Strategy{extractor.Text(feed.KeyWasPrice)},
				Packaging:     []extractor.Strategy{extractor.Text(feed.KeyPackaging)},
				PromoUntil:    []extractor.Strategy{extractor.Text(feed.KeyPromoUntil)},
				Available:     []extractor.Strategy{extractor.Text(feed.KeyAvailable)},
				Image:         []extractor.Strategy{extractor.Text(feed.KeyImage)},
				Category:      []extractor.Strategy{extractor.Text(feed.KeyCategory)},
			},
		},
		Endpoint: "https://www.jumbo.com/api/graphql",
		Origin:   "https://www.jumbo.com",
		Search: feed.SearchConfig{
			Query: jumboQuery,
			Input: map[string]any{
				"searchType":         "category",
				"searchTerms":        "producten",
				"friendlyUrl":        "",
				"currentUrl":         "/producten/",
				"previousUrl":        "",
				"bloomreachCookieId": "",
			},
			OffsetKey: "offSet",
			PageSize:  24,
		},
	}
}

const dirkQuery = `query {
  listWebGroupProducts(webGroupId: %d) {
    productAssortment(storeId: %d) {
      productId
      normalPrice
      offerPrice
      productOffer {
        textPriceSign
        endDate
        startDate
      }
      productInformation {
        headerText
        packaging
        brand
        image
        department
        webgroup
      }
    }
  }
}`

// Dirk lists the assortment of one store per web group. Groups are walked in
// order and hold no pages; the web group label is the category, with the
// department as fallback.
func Dirk() Site {
	return Site{
		Name: "dirk",
		Mode: ModeGroups,
		Extractor: extractor.Config{
			Source:    "dirk",
			BaseURL:   "https://www.dirk.nl",
			RequireID: true,
			Language:  language.Dutch,
			Fields: extractor.Fields{
				ID:            []extractor.Strategy{extractor.Text(feed.KeyID)},
				Name:          []extractor.Strategy{extractor.Text(feed.KeyTitle)},
				Brand:         []extractor.Strategy{extractor.Text(feed.KeyBrand)},
				Price:         []extractor.Strategy{extractor.Text(feed.KeyPromoPrice), extractor.Text(feed.KeyPrice)},
				PreviousPrice: []extractor.Strategy{extractor.Text(feed.KeyWasPrice)},
				Packaging:     []extractor.Strategy{extractor.Text(feed.KeyPackaging)},
				Promo:         []extractor.Strategy{extractor.Text(feed.KeyPromoLabel)},
				PromoUntil:    []extractor.Strategy{extractor.Text(feed.KeyPromoUntil)},
				Image:         []extractor.Strategy{extractor.Text(feed.KeyImage)},
				Category:      []extractor.Strategy{extractor.Text(feed.KeyCategory, feed.KeyDepartment)},
			},
		},
		Endpoint: "https://web-dirk-gateway.detailresult.nl/graphql",
		Origin:   "https://www.dirk.nl",
		Groups: feed.WebGroupConfig{
			Query:   dirkQuery,
			StoreID: 66,
		},
		FirstGroup: 1,
		LastGroup:  150,
	}
}
