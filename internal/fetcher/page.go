package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Fund pages occasionally serve multi-megabyte marketing payloads; cap what
// we pull into memory per fetch.
const maxPageBytes = 4 << 20

// PageOptions parameterise the HTTP page fetcher.
type PageOptions struct {
	Timeout   time.Duration
	UserAgent string
}

// Page fetches fund pages over HTTP.
type Page struct {
	opts   PageOptions
	logger zerolog.Logger
	client *http.Client
}

// NewPage constructs an HTTP page fetcher.
func NewPage(opts PageOptions, logger zerolog.Logger) *Page {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Page{
		opts:   opts,
		logger: logger.With().Str("component", "page_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// FetchPage retrieves the body of a fund page as text.
func (p *Page) FetchPage(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", errors.New("page url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create page request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	if ua := strings.TrimSpace(p.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "fundwatch/1.0")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read page body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fund page error (%d): %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return string(body), nil
}

var _ PageFetcher = (*Page)(nil)
