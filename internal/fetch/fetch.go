// Package fetch retrieves article HTML over HTTP and classifies failures
// into permanent ones (the record should be marked failed) and transient
// ones (the record should be retried on a later run).
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrPermanent marks failures that will not heal on retry: client errors
// and responses with no usable body.
var ErrPermanent = errors.New("permanent fetch failure")

// maxBodyBytes caps how much HTML is read from a single article.
const maxBodyBytes = 10 << 20

// Fetcher retrieves the raw bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher is the default Fetcher on net/http.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates an HTTPFetcher with the given timeout and UA.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch downloads url. 4xx statuses and empty bodies wrap ErrPermanent;
// transport errors and 5xx statuses are returned as plain errors so the
// caller can retry on the next run.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bad url %q: %v", ErrPermanent, url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("fetch %s: server status %d", url, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("%w: status %d for %s", ErrPermanent, resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body from %s: %w", url, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body from %s", ErrPermanent, url)
	}
	return body, nil
}

// IsPermanent reports whether err represents a failure that should mark the
// source failed rather than leave it for retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
