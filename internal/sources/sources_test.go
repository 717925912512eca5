package sources

import (
	"context"
	"testing"
	"time"

	"github.com/maltedev/shelf-price-scraper/internal/extractor"
	"github.com/maltedev/shelf-price-scraper/internal/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var capturedAt = time.Date(2026, 5, 4, 7, 30, 0, 0, time.UTC)

func TestLookup(t *testing.T) {
	site, err := Lookup(" Jumbo ")
	require.NoError(t, err)
	assert.Equal(t, ModeFeed, site.Mode)
	assert.Equal(t, "jumbo", site.Extractor.Source)

	site, err = Lookup("ah")
	require.NoError(t, err)
	assert.Equal(t, ModeRendered, site.Mode)
	assert.NotEmpty(t, site.Listing.CardSelectors)

	site, err = Lookup("DIRK")
	require.NoError(t, err)
	assert.Equal(t, ModeGroups, site.Mode)
	assert.Equal(t, 1, site.FirstGroup)
	assert.Equal(t, 150, site.LastGroup)
	assert.Equal(t, 66, site.Groups.StoreID)

	_, err = Lookup("plus")
	assert.ErrorIs(t, err, ErrUnknownSource)

	assert.Equal(t, []string{"ah", "dirk", "jumbo"}, Names())
}

func TestLookupReturnsIndependentCopies(t *testing.T) {
	a, err := Lookup("ah")
	require.NoError(t, err)
	a.Extractor.Acronyms["xl"] = "XL"

	b, err := Lookup("ah")
	require.NoError(t, err)
	assert.NotContains(t, b.Extractor.Acronyms, "xl")
}

func TestJumboItemExtraction(t *testing.T) {
	ex, err := extractor.New(Jumbo().Extractor)
	require.NoError(t, err)

	tests := []struct {
		name          string
		item          feed.Item
		wantPrice     float64
		wantPrevious  *float64
		wantUnitPrice *float64
		wantUnitBase  string
	}{
		{
			name: "regular price",
			item: feed.Item{
				feed.KeyID:        "67649PAK",
				feed.KeyTitle:     "Jumbo Halfvolle Melk 2L",
				feed.KeyLink:      "/producten/jumbo-halfvolle-melk-2l-67649PAK",
				feed.KeyPackaging: "2 l",
				feed.KeyPrice:     "2.18",
				feed.KeyAvailable: "true",
				feed.KeyCategory:  "Zuivel, eieren, boter",
			},
			wantPrice:     2.18,
			wantUnitPrice: ptr(1.09),
			wantUnitBase:  "l",
		},
		{
			name: "promotion",
			item: feed.Item{
				feed.KeyID:         "12345STK",
				feed.KeyTitle:      "Hak Bruine Bonen",
				feed.KeyPackaging:  "3 x 400 g",
				feed.KeyPrice:      "3.00",
				feed.KeyPromoPrice: "2.40",
				feed.KeyWasPrice:   "3.00",
				feed.KeyPromoUntil: "zo 12 okt",
			},
			wantPrice:     2.40,
			wantPrevious:  ptr(3.00),
			wantUnitPrice: ptr(2.00),
			wantUnitBase:  "kg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ex.Extract(context.Background(), tt.item, capturedAt)
			require.NoError(t, err)

			assert.Equal(t, "jumbo", rec.Source)
			assert.Equal(t, tt.item[feed.KeyID], rec.ExternalID)
			assert.Equal(t, tt.item[feed.KeyTitle], rec.Name)
			assert.InDelta(t, tt.wantPrice, rec.CurrentPrice, 0.001)
			if tt.wantPrevious == nil {
				assert.Nil(t, rec.PreviousPrice)
			} else {
				require.NotNil(t, rec.PreviousPrice)
				assert.InDelta(t, *tt.wantPrevious, *rec.PreviousPrice, 0.001)
			}
			if tt.wantUnitPrice == nil {
				assert.Nil(t, rec.UnitPrice)
			} else {
				require.NotNil(t, rec.UnitPrice)
				assert.InDelta(t, *tt.wantUnitPrice, *rec.UnitPrice, 0.001)
			}
			assert.Equal(t, tt.wantUnitBase, rec.UnitBase)
		})
	}
}

func TestJumboItemWithoutSKUIsSkipped(t *testing.T) {
	ex, err := extractor.New(Jumbo().Extractor)
	require.NoError(t, err)

	_, err = ex.Extract(context.Background(), feed.Item{feed.KeyTitle: "Zonder sku", feed.KeyPrice: "1.00"}, capturedAt)
	assert.ErrorIs(t, err, extractor.ErrMissingIdentifier)
}

func TestAlbertHeijnCardExtraction(t *testing.T) {
	html := `<html><body>
		<article class="product-card-portrait">
			<div data-test="product-card">
				<a href="/producten/product/wi383142/ah-halfvolle-melk">
					<img src="//static.ahstatic.nl/melk.jpg" loading="lazy">
					<span data-test="product-title">AH Halfvolle melk</span>
				</a>
				<span data-test="product-unit-size">1,5 l</span>
				<div class="price-amount">€ 1,39</div>
			</div>
		</article>
	</body></html>`

	site := AlbertHeijn()
	nodes, err := extractor.NodesFromHTML(html, site.Listing.CardSelectors)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	ex, err := extractor.New(site.Extractor)
	require.NoError(t, err)

	rec, err := ex.Extract(context.Background(), nodes[0], capturedAt)
	require.NoError(t, err)

	assert.Equal(t, "wi383142", rec.ExternalID)
	assert.Equal(t, "AH Halfvolle Melk", rec.Name)
	assert.Equal(t, "https://www.ah.nl/producten/product/wi383142/ah-halfvolle-melk", rec.DetailURL)
	assert.Equal(t, "https://static.ahstatic.nl/melk.jpg", rec.ImageRef)
	assert.InDelta(t, 1.39, rec.CurrentPrice, 0.001)
	assert.Equal(t, "1,5 l", rec.PackagingText)
	require.NotNil(t, rec.UnitPrice)
	assert.InDelta(t, 0.93, *rec.UnitPrice, 0.001)
	assert.Equal(t, "l", rec.UnitBase)
}

func TestAlbertHeijnNameFromLinkTitle(t *testing.T) {
	html := `<html><body>
		<article>
			<div data-test="product-card">
				<a href="/producten/product/wi441199/--" title="  AH Griekse   yoghurt ">
					<img src="https://static.ahstatic.nl/yoghurt.jpg">
				</a>
				<div class="price-amount">€ 2,29</div>
			</div>
		</article>
	</body></html>`

	site := AlbertHeijn()
	nodes, err := extractor.NodesFromHTML(html, site.Listing.CardSelectors)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	ex, err := extractor.New(site.Extractor)
	require.NoError(t, err)

	rec, err := ex.Extract(context.Background(), nodes[0], capturedAt)
	require.NoError(t, err)
	assert.Equal(t, "wi441199", rec.ExternalID)
	assert.Equal(t, "AH Griekse yoghurt", rec.Name)
}

func TestDirkItemExtraction(t *testing.T) {
	ex, err := extractor.New(Dirk().Extractor)
	require.NoError(t, err)

	tests := []struct {
		name         string
		item         feed.Item
		wantPrice    float64
		wantPrevious *float64
		wantCategory string
		wantPromo    string
	}{
		{
			name: "normal price",
			item: feed.Item{
				feed.KeyID:         "98213",
				feed.KeyTitle:      "Halfvolle melk",
				feed.KeyPackaging:  "1 l",
				feed.KeyPrice:      "1.09",
				feed.KeyCategory:   "Melk",
				feed.KeyDepartment: "Zuivel",
			},
			wantPrice:    1.09,
			wantCategory: "Melk",
		},
		{
			name: "offer price",
			item: feed.Item{
				feed.KeyID:         "10455",
				feed.KeyTitle:      "Pindakaas",
				feed.KeyPackaging:  "350 g",
				feed.KeyPrice:      "2.49",
				feed.KeyPromoPrice: "1.99",
				feed.KeyWasPrice:   "2.49",
				feed.KeyPromoLabel: "2e halve prijs",
				feed.KeyDepartment: "Ontbijt",
			},
			wantPrice:    1.99,
			wantPrevious: ptr(2.49),
			wantCategory: "Ontbijt",
			wantPromo:    "2e halve prijs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ex.Extract(context.Background(), tt.item, capturedAt)
			require.NoError(t, err)

			assert.Equal(t, "dirk", rec.Source)
			assert.Equal(t, tt.item[feed.KeyID], rec.ExternalID)
			assert.InDelta(t, tt.wantPrice, rec.CurrentPrice, 0.001)
			if tt.wantPrevious == nil {
				assert.Nil(t, rec.PreviousPrice)
			} else {
				require.NotNil(t, rec.PreviousPrice)
				assert.InDelta(t, *tt.wantPrevious, *rec.PreviousPrice, 0.001)
			}
			assert.Equal(t, tt.wantCategory, rec.Category)
			assert.Equal(t, tt.wantPromo, rec.PromoLabel)
			assert.NotNil(t, rec.UnitPrice)
		})
	}
}

func ptr(v float64) *float64 {
	return &v
}
