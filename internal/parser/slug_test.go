package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestSlugHumanizer_Humanize(t *testing.T) {
	h := NewSlugHumanizer(language.Dutch, nil, nil)

	tests := []struct {
		slug     string
		expected string
	}{
		{"ah-halfvolle-melk-2l", "AH Halfvolle Melk 2L"},
		{"de-zaanse-hoeve-yoghurt-van-het-land", "De Zaanse Hoeve Yoghurt van het Land"},
		{"bio-uht-volle-melk", "Bio UHT Volle Melk"},
		{"van-dobben-kroketten", "Van Dobben Kroketten"},
		{"chocolade_hagelslag  puur", "Chocolade Hagelslag Puur"},
		{"--", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			assert.Equal(t, tt.expected, h.Humanize(tt.slug))
		})
	}
}

func TestSlugHumanizer_CustomVocabulary(t *testing.T) {
	h := NewSlugHumanizer(language.Und, map[string]string{"xl": "XL"}, []string{"and"})
	assert.Equal(t, "Shirt and Socks XL", h.Humanize("shirt-and-socks-xl"))
	assert.Equal(t, "And More", h.Humanize("and-more"))
}

func TestSlugFromURL(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://www.ah.nl/producten/product/wi195821/ah-halfvolle-melk", "ah-halfvolle-melk"},
		{"/producten/product/wi1/ah-pindakaas/", "ah-pindakaas"},
		{"https://shop.example/p/cr%C3%A8me-fra%C3%AEche?x=1#top", "crème-fraîche"},
		{"https://shop.example/", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, SlugFromURL(tt.url))
		})
	}
}
