package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	userAgent        = "Mozilla/5.0 (compatible; multitool-assistant/1.0)"
	maxResponseBytes = 2 << 20 // 2MB
)

var errProviderStatus = errors.New("provider returned unexpected status")

// NewHTTPClient returns the client shared by all tool adapters.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Options configures an HTTP-backed tool adapter.
type Options struct {
	Client     *http.Client
	BaseURL    string
	MaxResults int
}

func (o Options) withDefaults(baseURL string) (Options, error) {
	if o.Client == nil {
		o.Client = NewHTTPClient(15 * time.Second)
	}
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	if _, err := url.ParseRequestURI(o.BaseURL); err != nil {
		return o, fmt.Errorf("invalid base URL %q: %w", o.BaseURL, err)
	}
	if o.MaxResults <= 0 {
		o.MaxResults = 5
	}
	return o, nil
}

// get performs a GET and returns the body of a 2xx response.
func get(ctx context.Context, client *http.Client, rawURL string, query url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, resp.StatusCode, fmt.Errorf("%w: %d", errProviderStatus, resp.StatusCode)
	}
	return body, resp.StatusCode, nil
}
