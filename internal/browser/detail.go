package browser

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"
)

// DetailFetcher loads detail pages through the browser context's request
// client, so cookies and consent state are shared with the listing.
type DetailFetcher struct {
	request playwright.APIRequestContext
	timeout float64
}

func NewDetailFetcher(b *Browser) *DetailFetcher {
	return &DetailFetcher{
		request: b.Context().Request(),
		timeout: float64(b.opts.Timeout.Milliseconds()),
	}
}

func (f *DetailFetcher) FetchDetail(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp, err := f.request.Get(url, playwright.APIRequestContextGetOptions{Timeout: playwright.Float(f.timeout)})
	if err != nil {
		return "", fmt.Errorf("failed to fetch detail page: %w", err)
	}
	defer resp.Dispose()

	if !resp.Ok() {
		return "", fmt.Errorf("detail page %s returned status %d", url, resp.Status())
	}

	html, err := resp.Text()
	if err != nil {
		return "", fmt.Errorf("failed to read detail page: %w", err)
	}
	return html, nil
}
