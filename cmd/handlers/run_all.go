package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vigia/internal/logger"
	"vigia/internal/pipeline"
)

// NewRunAllCmd creates the run-all command: the full pipeline in one
// invocation, the way the scheduler drives it.
func NewRunAllCmd() *cobra.Command {
	var (
		startDate string
		endDate   string
		query     string
		expand    bool
		geo       bool
		force     bool
		workers   int
	)

	cmd := &cobra.Command{
		Use:   "run-all",
		Short: "Run the whole pipeline: fetch, extract, and enrich",
		Long: `Run every stage in sequence: discover sources, download articles,
extract events, and resolve them into incidents. Records left behind by
earlier runs are swept up along the way.

Examples:
  vigia run-all
  vigia run-all --start-date 2024-05-01 --end-date 2024-05-08 --expand --geo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAll(cmd.Context(), runAllOptions{
				startDate: startDate,
				endDate:   endDate,
				query:     query,
				expand:    expand,
				geo:       geo,
				force:     force,
				workers:   workers,
			})
		},
	}

	cmd.Flags().StringVar(&startDate, "start-date", "", "Inclusive start of the search window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "Exclusive end of the search window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&query, "query", "", "Override the configured base query")
	cmd.Flags().BoolVar(&expand, "expand", false, "Add alternate topic phrasings to the query grid")
	cmd.Flags().BoolVar(&geo, "geo", false, "Add per-neighborhood queries to the query grid")
	cmd.Flags().BoolVar(&force, "force", false, "Reprocess sources past their current stage")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker pool size (default from config)")

	return cmd
}

type runAllOptions struct {
	startDate string
	endDate   string
	query     string
	expand    bool
	geo       bool
	force     bool
	workers   int
}

func runAll(ctx context.Context, opts runAllOptions) error {
	log := logger.Get()
	log.Info("Starting full pipeline run",
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
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}

	start := time.Now()
	p := pipeline.NewBuilder(db).WithConfig(cfg).Build(ctx)

	if p.Degraded() {
		fmt.Println("⚠️  No model credentials configured; extractions will use fallback stubs")
	}

	report, err := p.RunAll(ctx, feedOpts)
	if err != nil {
		return err
	}
	duration := time.Since(start)

	fmt.Println("\n📊 Pipeline Summary")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Duration:          %s\n", duration.Round(time.Millisecond))
	fmt.Printf("Feed Entries:      %d\n", report.Ingest.Fetched)
	fmt.Printf("New Sources:       %d\n", report.Ingest.NewSources)
	fmt.Printf("Downloads:         %d\n", report.Download.Downloaded)
	fmt.Printf("Events Extracted:  %d\n", report.Extract.Extracted)
	fmt.Printf("Discarded:         %d\n", report.Extract.Discarded)
	fmt.Printf("Linked:            %d\n", report.Enrich.Linked)
	fmt.Printf("Incidents Created: %d\n", report.Enrich.Created)
	fmt.Printf("Jobs Executed:     %d\n", report.Queue.Executed)
	fmt.Printf("Jobs Failed:       %d\n", report.Queue.Failed)

	if report.Queue.Failed > 0 {
		fmt.Printf("\n⚠️  %d jobs failed; the next run picks their records up again\n", report.Queue.Failed)
	}

	if report.Enrich.Linked+report.Enrich.Created > 0 {
		fmt.Printf("\n✅ Resolved %d events into incidents\n", report.Enrich.Linked+report.Enrich.Created)
		fmt.Println("Next steps:")
		fmt.Println("  • Inspect the results: vigia status")
	} else if report.Ingest.Fetched == 0 {
		fmt.Println("\nℹ️  No feed entries found")
		fmt.Println("   Try widening the date window or adding --expand")
	} else {
		fmt.Println("\nℹ️  Run finished with nothing to resolve")
	}

	return nil
}
