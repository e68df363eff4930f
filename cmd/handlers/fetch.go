package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vigia/internal/dates"
	"vigia/internal/feeds"
	"vigia/internal/logger"
	"vigia/internal/pipeline"
	"vigia/internal/tasks"
)

// NewFetchCmd creates the fetch command: feed discovery plus download.
func NewFetchCmd() *cobra.Command {
	var (
		startDate  string
		endDate    string
		query      string
		expand     bool
		geo        bool
		force      bool
		maxWorkers int
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Discover news sources and download their article bodies",
		Long: `Search the news aggregator for candidate articles, record each hit
as a source, and download the article bodies with a worker pool.

A date range walks the aggregator one day at a time, which works around
its per-query result cap. --expand adds alternate phrasings of the base
query and --geo adds per-neighborhood queries.

Examples:
  vigia fetch
  vigia fetch --start-date 2024-05-01 --end-date 2024-06-01 --expand
  vigia fetch --query "homicídio Maceió" --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), fetchOptions{
				startDate:  startDate,
				endDate:    endDate,
				query:      query,
				expand:     expand,
				geo:        geo,
				force:      force,
				maxWorkers: maxWorkers,
			})
		},
	}

	cmd.Flags().StringVar(&startDate, "start-date", "", "Inclusive start of the search window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "Exclusive end of the search window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&query, "query", "", "Override the configured base query")
	cmd.Flags().BoolVar(&expand, "expand", false, "Add alternate topic phrasings to the query grid")
	cmd.Flags().BoolVar(&geo, "geo", false, "Add per-neighborhood queries to the query grid")
	cmd.Flags().BoolVar(&force, "force", false, "Re-download sources that already have content")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Download pool size (default from config)")

	return cmd
}

type fetchOptions struct {
	startDate  string
	endDate    string
	query      string
	expand     bool
	geo        bool
	force      bool
	maxWorkers int
}

func runFetch(ctx context.Context, opts fetchOptions) error {
	log := logger.Get()
	log.Info("Starting fetch",
		"start_date", opts.startDate,
		"end_date", opts.endDate,
		"query", opts.query,
		"expand", opts.expand,
		"geo", opts.geo,
		"force", opts.force,
	)

	feedOpts, err := buildFeedOptions(opts.query, opts.startDate, opts.endDate, opts.expand, opts.geo)
	if err != nil {
		return err
	}

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	ctx, stop := signalContext(ctx)
	defer stop()

	cfg := pipeline.DefaultConfig()
	cfg.Force = opts.force
	if opts.maxWorkers > 0 {
		cfg.Workers = opts.maxWorkers
	}

	start := time.Now()
	p := pipeline.NewBuilder(db).WithConfig(cfg).Build(ctx)
	p.Serve(tasks.StageDownload)

	ingest, err := p.Ingest(ctx, feedOpts)
	if err != nil {
		return err
	}
	queueStats := p.Drain(ctx)
	download, _, _ := p.Stats()
	duration := time.Since(start)

	fmt.Println("\n📊 Fetch Summary")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Duration:        %s\n", duration.Round(time.Millisecond))
	fmt.Printf("Feed Entries:    %d\n", ingest.Fetched)
	fmt.Printf("New Sources:     %d\n", ingest.NewSources)
	fmt.Printf("Downloads:       %d\n", download.Downloaded)
	fmt.Printf("Skipped:         %d\n", download.Skipped)
	fmt.Printf("Failed:          %d\n", download.Failed)

	if queueStats.Failed > 0 {
		fmt.Printf("\n⚠️  %d download jobs hit transient errors; they will be retried on the next run\n", queueStats.Failed)
	}

	if download.Downloaded > 0 {
		fmt.Printf("\n✅ Downloaded %d articles\n", download.Downloaded)
		fmt.Println("Next steps:")
		fmt.Println("  • Extract events: vigia extract")
	} else if ingest.Fetched == 0 {
		fmt.Println("\nℹ️  No feed entries found")
		fmt.Println("   Try widening the date window or adding --expand")
	} else {
		fmt.Println("\nℹ️  Nothing new to download")
	}

	return nil
}

// buildFeedOptions validates the date flags and assembles the feed query
// grid options shared by fetch and run-all.
func buildFeedOptions(query, startDate, endDate string, expand, geo bool) (feeds.Options, error) {
	opts := feeds.Options{Query: query, Expand: expand, Geo: geo}
	if startDate != "" {
		t, err := dates.ParseYMD(startDate)
		if err != nil {
			return opts, fmt.Errorf("invalid --start-date: %w", err)
		}
		opts.StartDate = &t
	}
	if endDate != "" {
		t, err := dates.ParseYMD(endDate)
		if err != nil {
			return opts, fmt.Errorf("invalid --end-date: %w", err)
		}
		opts.EndDate = &t
	}
	if (opts.StartDate == nil) != (opts.EndDate == nil) {
		return opts, fmt.Errorf("--start-date and --end-date must be given together")
	}
	if opts.StartDate != nil && !opts.StartDate.Before(*opts.EndDate) {
		return opts, fmt.Errorf("--start-date must fall before --end-date")
	}
	return opts, nil
}
