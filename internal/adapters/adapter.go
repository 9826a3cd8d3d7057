// Package adapters implements the per-platform pollers. Every adapter
// absorbs its own failures: network errors, bad payloads and scrape misses
// become Error records or errorDetails annotations, never returned errors.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	requestTimeout = 10 * time.Second

	// Generous upper bound on a single streamer poll, scrapes included.
	perStreamerBudget = time.Minute
)

// Client is the shared HTTP client for the API-backed adapters: per-request
// timeout and a configured User-Agent on every call.
type Client struct {
	http      *http.Client
	userAgent string
}

func NewClient(userAgent string) *Client {
	return &Client{
		http:      &http.Client{Timeout: requestTimeout},
		userAgent: userAgent,
	}
}

// GetJSON issues a GET and decodes the response body into out.
// Non-2xx statuses are errors.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	return c.doJSON(ctx, http.MethodGet, url, header, nil, out)
}

// PostJSON issues a POST with a JSON body and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = strings.NewReader(string(data))
	}
	return c.doJSON(ctx, http.MethodPost, url, header, reader, out)
}

// PostForm issues a POST with form-encoded values and decodes the JSON
// response into out.
func (c *Client) PostForm(ctx context.Context, url string, form string, out any) error {
	header := http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}}
	return c.doJSON(ctx, http.MethodPost, url, header, strings.NewReader(form), out)
}

func (c *Client) doJSON(ctx context.Context, method, url string, header http.Header, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// combineErrors joins partial-failure annotations the way the record model
// expects: usable core fields plus a single errorDetails string.
func combineErrors(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "; ")
}

// fetchCtx caps a single streamer poll at the per-streamer budget.
func fetchCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, perStreamerBudget)
}
