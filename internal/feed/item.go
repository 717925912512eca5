package feed

import (
	"context"
	"strings"
)

// Item is a flattened feed product. Selectors name item keys; an item has no
// attributes apart from its keys and no rendered text.
type Item map[string]string

func (it Item) QueryText(_ context.Context, selectors []string) (string, error) {
	for _, key := range selectors {
		if v := strings.TrimSpace(it[key]); v != "" {
			return v, nil
		}
	}
	return "", nil
}

func (it Item) QueryAttribute(ctx context.Context, selectors []string, _ string) (string, error) {
	return it.QueryText(ctx, selectors)
}

func (it Item) FullText(context.Context) (string, error) {
	return "", nil
}
