package fetcher

import (
	"context"
)

// PageFetcher retrieves the rendered text of a fund page. Any status outside
// the 2xx range is reported as an error.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (string, error)
}
