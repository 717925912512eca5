package extractor

import (
	"context"
	"strings"
)

// Strategy is one way of producing a field value from a node.
type Strategy func(ctx context.Context, n Node) (string, error)

// Text reads the inner text of the first matching selector.
func Text(selectors ...string) Strategy {
	return func(ctx context.Context, n Node) (string, error) {
		return n.QueryText(ctx, selectors)
	}
}

// Attr reads attribute attr of the first matching selector.
func Attr(attr string, selectors ...string) Strategy {
	return func(ctx context.Context, n Node) (string, error) {
		return n.QueryAttribute(ctx, selectors, attr)
	}
}

// Const always yields v.
func Const(v string) Strategy {
	return func(context.Context, Node) (string, error) {
		return v, nil
	}
}

// First returns the trimmed result of the first strategy that yields a
// non-empty value. Failing strategies count as misses.
func First(ctx context.Context, n Node, strategies []Strategy) string {
	v, _ := FirstValue(ctx, n, strategies, func(s string) (string, bool) {
		return s, true
	})
	return v
}

// FirstValue is First with a conversion step; a value that does not convert
// is a miss and the next strategy is consulted.
func FirstValue[T any](ctx context.Context, n Node, strategies []Strategy, convert func(string) (T, bool)) (T, bool) {
	var zero T
	for _, s := range strategies {
		if s == nil {
			continue
		}
		raw, err := s(ctx, n)
		if err != nil {
			continue
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if v, ok := convert(raw); ok {
			return v, true
		}
	}
	return zero, false
}
