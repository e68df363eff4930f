// Package feeds expands a search query into an aggregator RSS query grid
// and yields the entries each grid cell returns. The aggregator caps every
// query at roughly 100 results, so date ranges are walked one day at a time;
// wider windows silently drop items.
package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"

	"vigia/internal/config"
	"vigia/internal/core"
	"vigia/internal/logger"
)

// topicTerms broaden the base query with alternate phrasings of the same
// event class. Read-only after process start.
var topicTerms = []string{
	"assassinato",
	"baleado morto",
	"tiroteio morte",
	"corpo encontrado",
	"latrocínio",
}

// geoTerms broaden the base query with locality names inside the target
// city. Read-only after process start.
var geoTerms = []string{
	"homicídio Benedito Bentes",
	"homicídio Jacintinho",
	"homicídio Vergel do Lago",
	"homicídio Tabuleiro do Martins",
	"homicídio Cidade Universitária Maceió",
}

// Options controls one fetch run.
type Options struct {
	Query     string     // overrides the configured base query when set
	StartDate *time.Time // inclusive, date precision
	EndDate   *time.Time // exclusive, date precision
	Expand    bool       // include topic terms
	Geo       bool       // include geo terms
}

// Fetcher pulls entries from the aggregator's RSS search endpoint.
type Fetcher struct {
	baseURL   string
	baseQuery string
	userAgent string
	client    *http.Client
	parser    *gofeed.Parser
	log       *slog.Logger
}

// NewFetcher creates a Fetcher from feed configuration.
func NewFetcher(cfg config.Feed) *Fetcher {
	return &Fetcher{
		baseURL:   cfg.BaseURL,
		baseQuery: cfg.Query,
		userAgent: cfg.UserAgent,
		client: &http.Client{
			Timeout: cfg.TimeoutDuration(),
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		parser: gofeed.NewParser(),
		log:    logger.Component("feeds"),
	}
}

// BuildFeedURL renders the aggregator RSS search URL for one query string.
func BuildFeedURL(base, query string) string {
	return fmt.Sprintf("%s/rss/search?q=%s&hl=pt-BR&gl=BR&ceid=BR:pt-419", base, url.QueryEscape(query))
}

// Queries expands the options into the full query grid: the base query plus
// enabled expansion terms, each crossed with one-day date windows when a
// range is given. Entries are not deduplicated here.
func (f *Fetcher) Queries(opts Options) []string {
	base := opts.Query
	if base == "" {
		base = f.baseQuery
	}

	terms := []string{base}
	if opts.Expand {
		terms = append(terms, topicTerms...)
	}
	if opts.Geo {
		terms = append(terms, geoTerms...)
	}

	if opts.StartDate == nil || opts.EndDate == nil {
		return terms
	}

	var queries []string
	start := opts.StartDate.UTC().Truncate(24 * time.Hour)
	end := opts.EndDate.UTC().Truncate(24 * time.Hour)
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		next := day.AddDate(0, 0, 1)
		for _, term := range terms {
			queries = append(queries, fmt.Sprintf("%s after:%s before:%s",
				term, day.Format("2006-01-02"), next.Format("2006-01-02")))
		}
	}
	return queries
}

// Stream fetches every grid cell and sends the entries it yields. The
// channel closes when the grid is exhausted or ctx is canceled. Failures of
// individual cells are logged and skipped; they never stop the stream.
func (f *Fetcher) Stream(ctx context.Context, opts Options) <-chan core.FeedEntry {
	out := make(chan core.FeedEntry)
	go func() {
		defer close(out)
		for _, query := range f.Queries(opts) {
			select {
			case <-ctx.Done():
				return
			default:
			}

			entries, err := f.fetchQuery(ctx, query)
			if err != nil {
				f.log.Warn("feed query failed", "query", query, "error", err.Error())
				continue
			}
			for _, entry := range entries {
				select {
				case out <- entry:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Fetch collects the full stream into a slice. Convenient for small grids
// and for tests.
func (f *Fetcher) Fetch(ctx context.Context, opts Options) []core.FeedEntry {
	var entries []core.FeedEntry
	for entry := range f.Stream(ctx, opts) {
		entries = append(entries, entry)
	}
	return entries
}

// fetchQuery pulls and parses a single RSS query.
func (f *Fetcher) fetchQuery(ctx context.Context, query string) ([]core.FeedEntry, error) {
	feedURL := BuildFeedURL(f.baseURL, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	entries := make([]core.FeedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		entry := core.FeedEntry{
			URL:   item.Link,
			Title: item.Title,
		}
		if item.PublishedParsed != nil {
			t := item.PublishedParsed.UTC()
			entry.Published = &t
		} else if item.UpdatedParsed != nil {
			t := item.UpdatedParsed.UTC()
			entry.Published = &t
		}
		entries = append(entries, entry)
	}

	f.log.Debug("feed query done", "query", query, "entries", len(entries))
	return entries, nil
}
