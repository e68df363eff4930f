package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vigia/internal/core"
	"vigia/internal/dates"
	"vigia/internal/fetch"
	"vigia/internal/persistence"
	"vigia/internal/tasks"
)

// downloadOutcome classifies what one download attempt did to its record.
type downloadOutcome int

const (
	downloadSkipped downloadOutcome = iota // failed record left alone
	downloadCurrent                        // content already present
	downloadDone                           // body fetched and stored
	downloadFailed                         // permanent or transient failure
)

// downloadOne is the queue handler for one source. It owns a dedicated
// connection for the record, commits through it, and chains the record
// into extraction when it ends the call with content. Transient errors
// propagate so the queue records and notifies the failure; permanent
// ones are settled here by marking the record failed.
func (p *Pipeline) downloadOne(ctx context.Context, id string) error {
	session, err := p.db.Session(ctx)
	if err != nil {
		p.recordDownload(downloadFailed)
		return fmt.Errorf("checking out session: %w", err)
	}
	defer session.Close()

	outcome, err := p.downloadSource(ctx, session.Sources(), id)
	p.recordDownload(outcome)
	p.tickDownloadProgress()

	if outcome == downloadDone || outcome == downloadCurrent {
		p.queue.Enqueue(tasks.StageExtract, id)
	}
	return err
}

// downloadSource runs the download sub-steps against the given
// repository: resolve the publisher URL, fetch the HTML, reconcile the
// body, and store the results with the status move to downloaded. The
// extract stage reuses it to ensure content inline.
func (p *Pipeline) downloadSource(ctx context.Context, sources persistence.SourceRepository, id string) (downloadOutcome, error) {
	src, err := sources.Get(ctx, id)
	if err != nil {
		return downloadFailed, fmt.Errorf("loading source: %w", err)
	}

	if src.Status == core.StatusFailed && !p.cfg.Force {
		return downloadSkipped, nil
	}
	if src.Content != nil && !p.cfg.Force {
		return downloadCurrent, nil
	}

	effectiveURL := src.URL
	if src.ResolvedURL != nil {
		effectiveURL = *src.ResolvedURL
	}
	if src.ResolvedURL == nil || p.cfg.Force {
		resolved := p.resolver.Resolve(ctx, src.URL)
		if resolved != src.URL && (src.ResolvedURL == nil || resolved != *src.ResolvedURL) {
			// Stored before the fetch so a transient failure below does
			// not waste the paced decoder call.
			if uerr := sources.UpdateResolvedURL(ctx, id, resolved); uerr != nil {
				return downloadFailed, fmt.Errorf("storing resolved url: %w", uerr)
			}
		}
		if resolved != src.URL {
			effectiveURL = resolved
		}
	}

	html, err := p.fetcher.Fetch(ctx, effectiveURL)
	if err != nil {
		if fetch.IsPermanent(err) {
			p.log.Warn("source permanently unfetchable",
				"id", id, "url", effectiveURL, "error", err.Error())
			if uerr := sources.UpdateStatus(ctx, id, core.StatusFailed); uerr != nil {
				return downloadFailed, fmt.Errorf("marking source failed: %w", uerr)
			}
			return downloadFailed, nil
		}
		return downloadFailed, fmt.Errorf("fetching %s: %w", effectiveURL, err)
	}

	body, _, metaDate := p.reconciler.Reconcile(html)
	if body == nil || strings.TrimSpace(*body) == "" {
		p.log.Warn("no article body extractable", "id", id, "url", effectiveURL)
		if uerr := sources.UpdateStatus(ctx, id, core.StatusFailed); uerr != nil {
			return downloadFailed, fmt.Errorf("marking source failed: %w", uerr)
		}
		return downloadFailed, nil
	}

	if _, terr := core.Transition(src.Status, core.StatusDownloaded, p.cfg.Force); terr != nil {
		return downloadFailed, fmt.Errorf("source %s: %w", id, terr)
	}
	published := dates.Reconcile(metaDate, src.PublishedAt, p.now(), p.cfg.MinYear)
	if err := sources.MarkDownloaded(ctx, id, nil, body, published); err != nil {
		return downloadFailed, fmt.Errorf("storing article body: %w", err)
	}

	p.log.Debug("source downloaded", "id", id, "url", effectiveURL, "bytes", len(*body))
	return downloadDone, nil
}

// recordDownload folds one outcome into the shared counters.
func (p *Pipeline) recordDownload(outcome downloadOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.download.Attempted++
	switch outcome {
	case downloadDone:
		p.download.Downloaded++
	case downloadFailed:
		p.download.Failed++
	default:
		p.download.Skipped++
	}
}

// tickDownloadProgress prints a progress line every ten completions.
func (p *Pipeline) tickDownloadProgress() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.downloadDone++
	if p.downloadDone%10 != 0 {
		return
	}
	elapsed := time.Since(p.downloadStart)
	remaining := p.downloadTotal - p.downloadDone
	if remaining < 0 {
		remaining = 0
	}
	eta := elapsed / time.Duration(p.downloadDone) * time.Duration(remaining)
	fmt.Printf("  ⏳ %d/%d downloads (%s elapsed, ETA %s)\n",
		p.downloadDone, p.downloadTotal,
		elapsed.Round(time.Second), eta.Round(time.Second))
}
