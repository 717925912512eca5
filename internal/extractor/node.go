package extractor

import "context"

// Node is one listing entry as seen by the extractor. Lookups return "" when
// no candidate selector matches; an error means the lookup itself failed.
// Candidates are tried in order and the first non-empty result wins. The
// empty selector addresses the entry itself.
type Node interface {
	QueryText(ctx context.Context, selectors []string) (string, error)
	QueryAttribute(ctx context.Context, selectors []string, attr string) (string, error)
	FullText(ctx context.Context) (string, error)
}

// HintCategory is the hint key for a listing-level category, such as a
// breadcrumb that applies to every entry on the page.
const HintCategory = "category"

// Hinter is implemented by nodes that carry listing-level context.
type Hinter interface {
	Hint(key string) string
}

// DetailFetcher retrieves the HTML of a product detail page.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, url string) (string, error)
}

// Waiter throttles outgoing requests.
type Waiter interface {
	Wait(ctx context.Context) error
}
