package browser

import (
	"context"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// LocatorNode exposes one listing card as an extractor node. Lookup failures
// are treated as misses; the card may have been re-rendered in between.
type LocatorNode struct {
	loc     playwright.Locator
	hints   map[string]string
	timeout float64
}

func NewLocatorNode(loc playwright.Locator, hints map[string]string, timeout float64) *LocatorNode {
	return &LocatorNode{loc: loc, hints: hints, timeout: timeout}
}

func (n *LocatorNode) scope(selector string) playwright.Locator {
	if selector == "" {
		return n.loc
	}
	return n.loc.Locator(selector)
}

func (n *LocatorNode) QueryText(ctx context.Context, selectors []string) (string, error) {
	for _, selector := range selectors {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		loc := n.scope(selector)
		if count, err := loc.Count(); err != nil || count == 0 {
			continue
		}
		text, err := loc.First().InnerText(playwright.LocatorInnerTextOptions{Timeout: playwright.Float(n.timeout)})
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, nil
		}
	}
	return "", nil
}

func (n *LocatorNode) QueryAttribute(ctx context.Context, selectors []string, attr string) (string, error) {
	for _, selector := range selectors {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		loc := n.scope(selector)
		if count, err := loc.Count(); err != nil || count == 0 {
			continue
		}
		v, err := loc.First().GetAttribute(attr, playwright.LocatorGetAttributeOptions{Timeout: playwright.Float(n.timeout)})
		if err != nil {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			return v, nil
		}
	}
	return "", nil
}

// FullText prefers the rendered text and falls back to the raw text content.
func (n *LocatorNode) FullText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := n.loc.InnerText(playwright.LocatorInnerTextOptions{Timeout: playwright.Float(n.timeout)})
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	return n.loc.TextContent(playwright.LocatorTextContentOptions{Timeout: playwright.Float(n.timeout)})
}

func (n *LocatorNode) Hint(key string) string {
	return n.hints[key]
}
