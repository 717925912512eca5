package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/net/html/charset"
)

// HTTPDetailFetcher downloads detail pages over plain HTTP, converts them to
// UTF-8 and keeps recent pages in memory.
type HTTPDetailFetcher struct {
	client    *http.Client
	userAgent string
	cache     *cache.Cache
}

func NewHTTPDetailFetcher(timeout, cacheTTL time.Duration) *HTTPDetailFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &HTTPDetailFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
		cache:     cache.New(cacheTTL, 2*cacheTTL),
	}
}

func (f *HTTPDetailFetcher) FetchDetail(ctx context.Context, url string) (string, error) {
	if html, ok := f.cache.Get(url); ok {
		return html.(string), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if slices.Contains([]int{http.StatusTooManyRequests, 430}, resp.StatusCode) {
		return "", fmt.Errorf("rate limited; retry after %s", resp.Header.Get("Retry-After"))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	html, err := toUTF8(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", err
	}
	f.cache.SetDefault(url, html)
	return html, nil
}

func toUTF8(body []byte, contentType string) (string, error) {
	encoding, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		return string(body), nil
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, encoding.NewDecoder().Reader(bytes.NewReader(body))); err != nil {
		return "", fmt.Errorf("failed to convert %s body: %w", name, err)
	}
	return buf.String(), nil
}
