// Package resolver unwraps aggregator redirect URLs to publisher URLs.
// Resolution is best-effort: any failure returns the input unchanged, and
// calls to the decoder are paced so the aggregator sees at most one request
// per interval.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"vigia/internal/logger"
)

// DefaultAggregatorHosts are the hosts treated as redirect wrappers.
var DefaultAggregatorHosts = []string{"news.google.com"}

// Decoder turns one aggregator URL into the publisher URL behind it.
type Decoder interface {
	Decode(ctx context.Context, rawURL string) (string, error)
}

// Resolver paces decoder calls and swallows their failures.
type Resolver struct {
	decoder Decoder
	limiter *rate.Limiter
	hosts   map[string]struct{}
	log     *slog.Logger
}

// New creates a Resolver. pace is the minimum interval between decoder
// calls; hosts defaults to DefaultAggregatorHosts when empty.
func New(decoder Decoder, pace time.Duration, hosts ...string) *Resolver {
	if len(hosts) == 0 {
		hosts = DefaultAggregatorHosts
	}
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		set[strings.ToLower(h)] = struct{}{}
	}
	return &Resolver{
		decoder: decoder,
		limiter: rate.NewLimiter(rate.Every(pace), 1),
		hosts:   set,
		log:     logger.Component("resolver"),
	}
}

// IsAggregator reports whether rawURL points at a known aggregator host.
func (r *Resolver) IsAggregator(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	_, ok := r.hosts[strings.ToLower(u.Hostname())]
	return ok
}

// Resolve returns the publisher URL for rawURL. Non-aggregator URLs pass
// through untouched and unpaced. Decoder errors, negative statuses, and
// cancellation all yield the input unchanged; Resolve never fails.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) string {
	if !r.IsAggregator(rawURL) {
		return rawURL
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return rawURL
	}

	resolved, err := r.decoder.Decode(ctx, rawURL)
	if err != nil || resolved == "" {
		r.log.Debug("decode failed, keeping original", "url", rawURL, "error", errString(err))
		return rawURL
	}
	return resolved
}

func errString(err error) string {
	if err == nil {
		return "empty result"
	}
	return err.Error()
}

// HTTPDecoder resolves aggregator URLs by following their redirect chain.
type HTTPDecoder struct {
	client    *http.Client
	userAgent string
}

// NewHTTPDecoder builds the default redirect-following decoder.
func NewHTTPDecoder(timeout time.Duration, userAgent string) *HTTPDecoder {
	return &HTTPDecoder{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Decode follows redirects and returns the final URL. A status of 400 or
// above counts as failure.
func (d *HTTPDecoder) Decode(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build decode request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("decode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("decode returned status %d", resp.StatusCode)
	}
	if resp.Request == nil || resp.Request.URL == nil {
		return "", errors.New("decode response carried no final URL")
	}
	return resp.Request.URL.String(), nil
}
