package parser

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	sizeTokenPattern = regexp.MustCompile(`^(\d+)([a-z]+)$`)
	separatorRun     = regexp.MustCompile(`[-_\s]+`)
)

// Default vocabulary for slug humanization. Keys are lower-case slug tokens.
var (
	DefaultAcronyms = map[string]string{
		"ah":  "AH",
		"uht": "UHT",
		"bio": "Bio",
		"nl":  "NL",
		"st":  "St.",
	}
	DefaultSmallWords = []string{
		"de", "het", "een", "en", "of", "van", "voor", "met", "per",
		"in", "op", "te", "bij", "als", "aan", "uit",
	}
)

// SlugHumanizer turns URL slugs such as "de-zaanse-hoeve-halfvolle-melk-2l"
// into display names ("De Zaanse Hoeve Halfvolle Melk 2L").
type SlugHumanizer struct {
	acronyms   map[string]string
	smallWords map[string]struct{}
	caser      cases.Caser
}

func NewSlugHumanizer(tag language.Tag, acronyms map[string]string, smallWords []string) *SlugHumanizer {
	if acronyms == nil {
		acronyms = DefaultAcronyms
	}
	if smallWords == nil {
		smallWords = DefaultSmallWords
	}
	small := make(map[string]struct{}, len(smallWords))
	for _, w := range smallWords {
		small[w] = struct{}{}
	}
	return &SlugHumanizer{
		acronyms:   acronyms,
		smallWords: small,
		caser:      cases.Title(tag),
	}
}

// Humanize returns "" when the slug has no usable tokens.
func (h *SlugHumanizer) Humanize(slug string) string {
	s := norm.NFC.String(strings.ToLower(strings.TrimSpace(slug)))
	s = strings.Trim(separatorRun.ReplaceAllString(s, "-"), "-")
	if s == "" {
		return ""
	}

	var out []string
	for _, tok := range strings.Split(s, "-") {
		if tok == "" {
			continue
		}
		if m := sizeTokenPattern.FindStringSubmatch(tok); m != nil {
			out = append(out, m[1]+strings.ToUpper(m[2]))
			continue
		}
		if a, ok := h.acronyms[tok]; ok {
			out = append(out, a)
			continue
		}
		if _, ok := h.smallWords[tok]; ok && len(out) > 0 {
			out = append(out, tok)
			continue
		}
		out = append(out, h.caser.String(tok))
	}
	return strings.Join(out, " ")
}

// SlugFromURL returns the last non-empty, unescaped path segment of rawURL.
func SlugFromURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.TrimRight(u.Path, "/"), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "" {
			continue
		}
		if p, err := url.PathUnescape(parts[i]); err == nil {
			return p
		}
		return parts[i]
	}
	return ""
}
