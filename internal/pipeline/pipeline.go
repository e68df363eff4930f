// Package pipeline chains the four stages that turn aggregator feed
// entries into canonical incidents: ingest discovers sources, download
// fetches and reconciles article bodies, extract runs the keyword gate
// and the model, and enrich resolves extractions against incidents.
// Stages hand records to each other through the task queue; each record
// is committed on its own connection.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vigia/internal/config"
	"vigia/internal/content"
	"vigia/internal/core"
	"vigia/internal/dedup"
	"vigia/internal/feeds"
	"vigia/internal/fetch"
	"vigia/internal/llm"
	"vigia/internal/logger"
	"vigia/internal/notify"
	"vigia/internal/persistence"
	"vigia/internal/resolver"
	"vigia/internal/tasks"
)

// Config holds the knobs one run uses across all stages.
type Config struct {
	Workers    int  // queue drain pool size
	Force      bool // reprocess records past their current stage
	DryRun     bool // report enrich decisions without writing
	AutoCreate bool // create incidents for unmatched extractions
	Limit      int  // extract sweep cap, 0 for unbounded

	City    string // stamped on auto-created incidents
	MinYear int    // oldest acceptable publication year

	Dedup config.Dedup
}

// DefaultConfig builds a Config from the loaded application config.
func DefaultConfig() Config {
	pipelineCfg := config.GetPipeline()
	return Config{
		Workers:    pipelineCfg.Workers,
		AutoCreate: true,
		City:       config.GetApp().City,
		MinYear:    pipelineCfg.MinYear,
		Dedup:      config.GetDedup(),
	}
}

// Pipeline owns the stage implementations and their shared run state.
// Build one per invocation; counters accumulate for the lifetime of the
// value.
type Pipeline struct {
	db         persistence.Database
	feeds      FeedSource
	resolver   URLResolver
	fetcher    fetch.Fetcher
	reconciler ContentReconciler
	extractor  EventExtractor
	sim        dedup.Similarity
	queue      *tasks.Queue
	notifier   notify.Notifier
	cfg        Config
	log        *slog.Logger
	now        func() time.Time

	mu            sync.Mutex
	download      core.DownloadStats
	extract       core.ExtractStats
	enrich        core.EnrichStats
	downloadTotal int
	downloadDone  int
	downloadStart time.Time

	// enrichMu serializes event resolution. Resolution reads unlinked
	// events and writes incidents across rows, so two overlapping passes
	// could resolve the same event twice.
	enrichMu sync.Mutex
}

// Builder assembles a Pipeline, defaulting any component not supplied.
type Builder struct {
	db         persistence.Database
	feeds      FeedSource
	resolver   URLResolver
	fetcher    fetch.Fetcher
	reconciler ContentReconciler
	extractor  EventExtractor
	sim        dedup.Similarity
	notifier   notify.Notifier
	cfg        Config
	hasConfig  bool
}

// NewBuilder starts a Builder over the given database.
func NewBuilder(db persistence.Database) *Builder {
	return &Builder{db: db}
}

// WithConfig sets the run configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	b.hasConfig = true
	return b
}

// WithFeeds sets the feed source.
func (b *Builder) WithFeeds(f FeedSource) *Builder {
	b.feeds = f
	return b
}

// WithResolver sets the redirect resolver.
func (b *Builder) WithResolver(r URLResolver) *Builder {
	b.resolver = r
	return b
}

// WithFetcher sets the article fetcher.
func (b *Builder) WithFetcher(f fetch.Fetcher) *Builder {
	b.fetcher = f
	return b
}

// WithReconciler sets the content reconciler.
func (b *Builder) WithReconciler(r ContentReconciler) *Builder {
	b.reconciler = r
	return b
}

// WithExtractor sets the model extractor.
func (b *Builder) WithExtractor(e EventExtractor) *Builder {
	b.extractor = e
	return b
}

// WithSimilarity sets the fuzzy matcher used for incident resolution.
func (b *Builder) WithSimilarity(s dedup.Similarity) *Builder {
	b.sim = s
	return b
}

// WithNotifier sets the failure-notification sink.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifier = n
	return b
}

// Build wires the pipeline, constructing the default component wherever
// no override was given. The context is used to initialize the model
// client; a missing API key degrades extraction rather than failing.
func (b *Builder) Build(ctx context.Context) *Pipeline {
	cfg := b.cfg
	if !b.hasConfig {
		cfg = DefaultConfig()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	feedCfg := config.GetFeed()
	if b.feeds == nil {
		b.feeds = feeds.NewFetcher(feedCfg)
	}
	if b.resolver == nil {
		decoder := resolver.NewHTTPDecoder(feedCfg.TimeoutDuration(), feedCfg.UserAgent)
		b.resolver = resolver.New(decoder, config.GetPipeline().ResolverPaceDuration())
	}
	if b.fetcher == nil {
		b.fetcher = fetch.NewHTTPFetcher(feedCfg.TimeoutDuration(), feedCfg.UserAgent)
	}
	if b.reconciler == nil {
		b.reconciler = content.NewReconciler(content.NewGoqueryExtractor(), cfg.MinYear)
	}
	if b.extractor == nil {
		b.extractor = llm.NewExtractorFromConfig(ctx, config.GetLLM(), cfg.City)
	}
	if b.sim == nil {
		b.sim = dedup.LCS{}
	}
	if b.notifier == nil {
		b.notifier = notify.FromConfig(config.GetNotify())
	}

	return &Pipeline{
		db:         b.db,
		feeds:      b.feeds,
		resolver:   b.resolver,
		fetcher:    b.fetcher,
		reconciler: b.reconciler,
		extractor:  b.extractor,
		sim:        b.sim,
		queue:      tasks.New(b.notifier, cfg.Workers),
		notifier:   b.notifier,
		cfg:        cfg,
		log:        logger.Component("pipeline"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Serve registers queue handlers for the given stages. Only registered
// stages accept jobs, so Serve decides how far a run's chaining reaches:
// call it before enqueueing anything.
func (p *Pipeline) Serve(stages ...tasks.Stage) {
	for _, stage := range stages {
		switch stage {
		case tasks.StageDownload:
			p.queue.Register(stage, func(ctx context.Context, job tasks.Job) error {
				return p.downloadOne(ctx, job.RecordID)
			})
		case tasks.StageExtract:
			p.queue.Register(stage, func(ctx context.Context, job tasks.Job) error {
				return p.extractOne(ctx, job.RecordID)
			})
		case tasks.StageEnrich:
			p.queue.Register(stage, func(ctx context.Context, job tasks.Job) error {
				return p.enrichOne(ctx, job.RecordID)
			})
		case tasks.StageClassifyPending:
			p.queue.Register(stage, p.queue.Batch(tasks.StageDownloadClassified, p.SweepPending))
		case tasks.StageDownloadClassified:
			p.queue.Register(stage, p.queue.Batch(tasks.StageExtractReady, p.SweepDownloaded))
		case tasks.StageExtractReady:
			p.queue.Register(stage, p.queue.Batch(tasks.StageBatchDedup, p.SweepUnlinked))
		case tasks.StageBatchDedup:
			p.queue.Register(stage, p.queue.Batch(tasks.StageBatchEnrich, p.linkSweep))
		case tasks.StageBatchEnrich:
			p.queue.Register(stage, p.queue.Batch("", p.enrichSweep))
		}
	}
}

// allStages lists every stage a full run serves, in chain order.
func allStages() []tasks.Stage {
	return []tasks.Stage{
		tasks.StageDownload,
		tasks.StageExtract,
		tasks.StageEnrich,
		tasks.StageClassifyPending,
		tasks.StageDownloadClassified,
		tasks.StageExtractReady,
		tasks.StageBatchDedup,
		tasks.StageBatchEnrich,
	}
}

// Drain runs the queue until it is empty or ctx is canceled.
func (p *Pipeline) Drain(ctx context.Context) tasks.Stats {
	return p.queue.Run(ctx)
}

// Enqueue schedules one job directly. Exposed for handlers that seed
// batch sweeps.
func (p *Pipeline) Enqueue(stage tasks.Stage, recordID string) bool {
	if stage == tasks.StageDownload {
		return p.enqueueDownload(recordID)
	}
	return p.queue.Enqueue(stage, recordID)
}

// Stats returns snapshots of the per-stage counters accumulated so far.
func (p *Pipeline) Stats() (core.DownloadStats, core.ExtractStats, core.EnrichStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.download, p.extract, p.enrich
}

// QueueStats returns the queue counters accumulated so far.
func (p *Pipeline) QueueStats() tasks.Stats {
	return p.queue.Stats()
}

// Degraded reports whether extraction is running without model access.
func (p *Pipeline) Degraded() bool {
	return p.extractor.Degraded()
}

// SweepPending enqueues a download job for every pending source and
// returns how many jobs it scheduled.
func (p *Pipeline) SweepPending(ctx context.Context) (int, error) {
	sources, err := p.db.Sources().ListByStatus(ctx, core.StatusPending, 0)
	if err != nil {
		return 0, fmt.Errorf("listing pending sources: %w", err)
	}
	count := 0
	for i := range sources {
		if p.enqueueDownload(sources[i].ID) {
			count++
		}
	}
	p.log.Info("pending sweep done", "seen", len(sources), "enqueued", count)
	return count, nil
}

// SweepDownloaded enqueues an extract job for every downloaded source and
// returns how many jobs it scheduled. Under force the sweep widens to
// every source, capped by the configured limit.
func (p *Pipeline) SweepDownloaded(ctx context.Context) (int, error) {
	var (
		sources []core.Source
		err     error
	)
	if p.cfg.Force {
		sources, err = p.db.Sources().List(ctx, persistence.ListOptions{Limit: p.cfg.Limit})
	} else {
		sources, err = p.db.Sources().ListByStatus(ctx, core.StatusDownloaded, p.cfg.Limit)
	}
	if err != nil {
		return 0, fmt.Errorf("listing extractable sources: %w", err)
	}
	count := 0
	for i := range sources {
		if p.queue.Enqueue(tasks.StageExtract, sources[i].ID) {
			count++
		}
	}
	p.log.Info("downloaded sweep done", "seen", len(sources), "enqueued", count)
	return count, nil
}

// SweepUnlinked enqueues an enrich job for every unlinked event that has
// a usable date and returns how many jobs it scheduled.
func (p *Pipeline) SweepUnlinked(ctx context.Context) (int, error) {
	events, err := p.db.Events().ListUnlinked(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("listing unlinked events: %w", err)
	}
	count := 0
	for i := range events {
		if events[i].ExtractedDate == nil {
			continue
		}
		if p.queue.Enqueue(tasks.StageEnrich, events[i].ID) {
			count++
		}
	}
	p.log.Info("unlinked sweep done", "seen", len(events), "enqueued", count)
	return count, nil
}

// linkSweep runs a link-only enrich pass and yields the number linked.
func (p *Pipeline) linkSweep(ctx context.Context) (int, error) {
	stats, err := p.EnrichBatch(ctx, false)
	return stats.Linked, err
}

// enrichSweep runs the full enrich pass and yields linked plus created.
func (p *Pipeline) enrichSweep(ctx context.Context) (int, error) {
	stats, err := p.EnrichBatch(ctx, p.cfg.AutoCreate)
	return stats.Linked + stats.Created, err
}

// enqueueDownload schedules a download job and keeps the progress totals
// current.
func (p *Pipeline) enqueueDownload(id string) bool {
	if !p.queue.Enqueue(tasks.StageDownload, id) {
		return false
	}
	p.mu.Lock()
	if p.downloadStart.IsZero() {
		p.downloadStart = time.Now()
	}
	p.downloadTotal++
	p.mu.Unlock()
	return true
}

// RunReport aggregates everything one full pipeline run produced.
type RunReport struct {
	Ingest   core.IngestStats
	Download core.DownloadStats
	Extract  core.ExtractStats
	Enrich   core.EnrichStats
	Queue    tasks.Stats
}

// RunAll executes the whole pipeline: ingest feeds the queue, the batch
// chain is seeded the way the scheduler would fire it, and the drain
// carries every record as far as it can go. A run summary is sent
// through the notifier before returning.
func (p *Pipeline) RunAll(ctx context.Context, opts feeds.Options) (RunReport, error) {
	p.Serve(allStages()...)

	var report RunReport
	ingest, err := p.Ingest(ctx, opts)
	report.Ingest = ingest
	if err != nil {
		return report, err
	}

	// Seed every batch sweep so strays from earlier runs are picked up
	// even when the upstream sweep yields nothing new.
	p.queue.Enqueue(tasks.StageClassifyPending, "")
	p.queue.Enqueue(tasks.StageDownloadClassified, "")
	p.queue.Enqueue(tasks.StageExtractReady, "")
	p.queue.Enqueue(tasks.StageBatchDedup, "")
	p.queue.Enqueue(tasks.StageBatchEnrich, "")

	report.Queue = p.Drain(ctx)
	report.Download, report.Extract, report.Enrich = p.Stats()

	summary := notify.Event{
		Kind:    notify.KindRunSummary,
		Message: "pipeline run finished",
		Fields: map[string]string{
			"fetched":    fmt.Sprintf("%d", report.Ingest.Fetched),
			"new":        fmt.Sprintf("%d", report.Ingest.NewSources),
			"downloaded": fmt.Sprintf("%d", report.Download.Downloaded),
			"extracted":  fmt.Sprintf("%d", report.Extract.Extracted),
			"linked":     fmt.Sprintf("%d", report.Enrich.Linked),
			"created":    fmt.Sprintf("%d", report.Enrich.Created),
			"failed":     fmt.Sprintf("%d", report.Queue.Failed),
		},
	}
	if nerr := p.notifier.Notify(ctx, summary); nerr != nil {
		p.log.Warn("run summary not delivered", "error", nerr)
	}
	return report, nil
}
