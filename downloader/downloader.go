package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sent with every request, unless headers override it.
const UserAgent = "onebusaway-transit/1"

type GetOptions struct {
	// Bodies are cut at MaxSize bytes, if positive.
	MaxSize int
	Timeout time.Duration

	Cache    bool
	CacheTTL time.Duration
}

// Downloader fetches a URL, possibly from a cache.
type Downloader interface {
	Get(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)
}

// StatusError is returned for any response but 200 OK.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.URL, e.StatusCode)
}

// Retryable is true for server side failures and throttling. Other
// client errors won't go away by asking again.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

var client = &http.Client{}

// HTTPGet fetches url without caching. Downloaders build on it.
func HTTPGet(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body := io.Reader(resp.Body)
	if options.MaxSize > 0 {
		body = io.LimitReader(body, int64(options.MaxSize))
	}

	buf, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return buf, nil
}
