package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// mapNode answers lookups from fixed maps and records every selector queried.
type mapNode struct {
	texts   map[string]string
	attrs   map[string]string
	full    string
	failing map[string]bool
	queried []string
}

func (m *mapNode) QueryText(_ context.Context, selectors []string) (string, error) {
	for _, s := range selectors {
		m.queried = append(m.queried, s)
		if m.failing[s] {
			return "", errors.New("lookup failed")
		}
		if v := m.texts[s]; v != "" {
			return v, nil
		}
	}
	return "", nil
}

func (m *mapNode) QueryAttribute(_ context.Context, selectors []string, attr string) (string, error) {
	for _, s := range selectors {
		m.queried = append(m.queried, s+"@"+attr)
		if v := m.attrs[s+"@"+attr]; v != "" {
			return v, nil
		}
	}
	return "", nil
}

func (m *mapNode) FullText(context.Context) (string, error) {
	return m.full, nil
}

func TestFirst_RankedOrder(t *testing.T) {
	ctx := context.Background()
	n := &mapNode{texts: map[string]string{".b": "second", ".c": "third"}}

	got := First(ctx, n, []Strategy{Text(".a"), Text(".b"), Text(".c")})

	assert.Equal(t, "second", got)
	assert.Equal(t, []string{".a", ".b"}, n.queried)
}

func TestFirst_FailingStrategyIsMiss(t *testing.T) {
	ctx := context.Background()
	n := &mapNode{
		texts:   map[string]string{".a": "never", ".b": "value"},
		failing: map[string]bool{".a": true},
	}

	assert.Equal(t, "value", First(ctx, n, []Strategy{Text(".a"), Text(".b")}))
}

func TestFirst_BlankAndNil(t *testing.T) {
	ctx := context.Background()
	n := &mapNode{texts: map[string]string{".blank": "   "}}

	assert.Equal(t, "fallback", First(ctx, n, []Strategy{nil, Text(".blank"), Const("  fallback ")}))
	assert.Equal(t, "", First(ctx, n, nil))
}

func TestFirstValue_ConversionMissFallsThrough(t *testing.T) {
	ctx := context.Background()
	n := &mapNode{
		texts: map[string]string{".label": "Bonus", ".price": "€ 2,49"},
		attrs: map[string]string{"a@data-price": "3.10"},
	}
	parse := func(s string) (string, bool) {
		return s, strings.ContainsAny(s, "0123456789")
	}

	got, ok := FirstValue(ctx, n, []Strategy{Text(".label"), Text(".price"), Attr("data-price", "a")}, parse)

	assert.True(t, ok)
	assert.Equal(t, "€ 2,49", got)
	assert.NotContains(t, n.queried, "a@data-price")
}
