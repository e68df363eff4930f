package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"vigia/internal/core"
	"vigia/internal/feeds"
	"vigia/internal/persistence"
)

// SourceTypeGoogleNews marks sources discovered through the aggregator
// RSS search.
const SourceTypeGoogleNews = "google_news"

// SourceID derives the deterministic identifier for an aggregator URL.
// The same URL always maps to the same ID, which makes ingestion
// idempotent across runs and processes.
func SourceID(url string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String()
}

// Ingest streams the feed grid and records every entry as a source.
// New URLs are inserted pending and scheduled for download; known URLs
// get their publication date backfilled when the feed now supplies one,
// and are rescheduled only while still pending or when the run is
// forced. Feed failures skip the entry; the stream itself never fails.
func (p *Pipeline) Ingest(ctx context.Context, opts feeds.Options) (core.IngestStats, error) {
	var stats core.IngestStats
	sources := p.db.Sources()

	for entry := range p.feeds.Stream(ctx, opts) {
		stats.Fetched++

		existing, err := sources.GetByURL(ctx, entry.URL)
		switch {
		case errors.Is(err, persistence.ErrNotFound):
			source := &core.Source{
				ID:          SourceID(entry.URL),
				URL:         entry.URL,
				Title:       entry.Title,
				SourceType:  SourceTypeGoogleNews,
				Status:      core.StatusPending,
				PublishedAt: entry.Published,
				FetchedAt:   p.now(),
			}
			created, cerr := sources.Create(ctx, source)
			if cerr != nil {
				p.log.Warn("source insert failed", "url", entry.URL, "error", cerr.Error())
				continue
			}
			if created {
				stats.NewSources++
			}
			if p.enqueueDownload(source.ID) {
				stats.Enqueued++
			}

		case err != nil:
			p.log.Warn("source lookup failed", "url", entry.URL, "error", err.Error())

		default:
			if existing.PublishedAt == nil && entry.Published != nil {
				if uerr := sources.UpdatePublishedAt(ctx, existing.ID, *entry.Published); uerr != nil {
					p.log.Warn("published_at backfill failed", "id", existing.ID, "error", uerr.Error())
				}
			}
			if existing.Status == core.StatusPending || p.cfg.Force {
				if p.enqueueDownload(existing.ID) {
					stats.Enqueued++
				}
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("ingest interrupted: %w", err)
	}
	p.log.Info("ingest done",
		"fetched", stats.Fetched,
		"new_sources", stats.NewSources,
		"enqueued", stats.Enqueued)
	return stats, nil
}
