package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var (
	ErrStatus  = errors.New("unexpected status code")
	ErrGraphQL = errors.New("graphql error")
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Request is a GraphQL request body.
type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// Client posts GraphQL queries to one endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	headers  map[string]string
	logger   *slog.Logger
}

type ClientOptions struct {
	Timeout   time.Duration
	UserAgent string
	// Origin also sets the Referer header.
	Origin  string
	Headers map[string]string
}

func NewClient(endpoint string, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   opts.UserAgent,
	}
	if opts.Origin != "" {
		headers["Origin"] = opts.Origin
		headers["Referer"] = strings.TrimRight(opts.Origin, "/") + "/"
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: opts.Timeout},
		headers:  headers,
		logger:   slog.Default().With("component", "graphql", "endpoint", endpoint),
	}
}

// Do sends req and decodes the data member of the response into out.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to post query: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("non-200 response", "status", resp.StatusCode, "body", truncate(string(payload), 500))
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	var decoded gqlResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		msgs := make([]string, 0, len(decoded.Errors))
		for _, e := range decoded.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(msgs, "; "))
	}

	if out == nil || len(decoded.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Data, out); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
