package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SelectionNode adapts a goquery selection to Node.
type SelectionNode struct {
	sel *goquery.Selection
}

func NewSelectionNode(sel *goquery.Selection) *SelectionNode {
	return &SelectionNode{sel: sel}
}

// NodesFromHTML parses html and returns one node per element matching the
// first entry selector that matches anything.
func NodesFromHTML(html string, entrySelectors []string) ([]Node, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	for _, selector := range entrySelectors {
		found := doc.Find(selector)
		if found.Length() == 0 {
			continue
		}
		nodes := make([]Node, 0, found.Length())
		found.Each(func(i int, s *goquery.Selection) {
			nodes = append(nodes, NewSelectionNode(s))
		})
		return nodes, nil
	}
	return nil, nil
}

func (n *SelectionNode) find(selector string) *goquery.Selection {
	if selector == "" {
		return n.sel
	}
	return n.sel.Find(selector).First()
}

func (n *SelectionNode) QueryText(_ context.Context, selectors []string) (string, error) {
	for _, selector := range selectors {
		s := n.find(selector)
		if s.Length() == 0 {
			continue
		}
		if text := strings.TrimSpace(s.Text()); text != "" {
			return text, nil
		}
	}
	return "", nil
}

func (n *SelectionNode) QueryAttribute(_ context.Context, selectors []string, attr string) (string, error) {
	for _, selector := range selectors {
		s := n.find(selector)
		if s.Length() == 0 {
			continue
		}
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", nil
}

func (n *SelectionNode) FullText(context.Context) (string, error) {
	return n.sel.Text(), nil
}
