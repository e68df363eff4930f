package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vigia/internal/logger"
	"vigia/internal/pipeline"
	"vigia/internal/tasks"
)

// NewExtractCmd creates the extract command: keyword gate, model pass,
// and event resolution for downloaded sources.
func NewExtractCmd() *cobra.Command {
	var (
		force   bool
		limit   int
		workers int
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract structured events from downloaded articles",
		Long: `Run every downloaded source through the keyword gate and the
language model, storing one extracted event per accepting article.
Each extraction is immediately resolved against known incidents.

With --force, already-processed sources are re-extracted in place and
their events updated; the original event rows are kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd.Context(), force, limit, workers)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-extract sources that were already processed")
	cmd.Flags().IntVar(&limit, "limit", 0, "Cap the number of sources swept (0 for all)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Extraction pool size (default from config)")

	return cmd
}

func runExtract(ctx context.Context, force bool, limit, workers int) error {
	log := logger.Get()
	log.Info("Starting extraction", "force", force, "limit", limit, "workers", workers)

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
	cfg.Force = force
	cfg.Limit = limit
	if workers > 0 {
		cfg.Workers = workers
	}

	start := time.Now()
	p := pipeline.NewBuilder(db).WithConfig(cfg).Build(ctx)
	p.Serve(tasks.StageExtract, tasks.StageEnrich)

	if p.Degraded() {
		fmt.Println("⚠️  No model credentials configured; extractions will use fallback stubs")
	}

	swept, err := p.SweepDownloaded(ctx)
	if err != nil {
		return err
	}
	if swept == 0 {
		fmt.Println("ℹ️  Nothing to extract")
		fmt.Println("   Download articles first: vigia fetch")
		return nil
	}

	queueStats := p.Drain(ctx)
	_, extract, enrich := p.Stats()
	duration := time.Since(start)

	fmt.Println("\n📊 Extraction Summary")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Duration:          %s\n", duration.Round(time.Millisecond))
	fmt.Printf("Sources Attempted: %d\n", extract.Attempted)
	fmt.Printf("Events Extracted:  %d\n", extract.Extracted)
	fmt.Printf("Discarded:         %d (keyword gate or model rejection)\n", extract.Discarded)
	fmt.Printf("Skipped:           %d\n", extract.Skipped)
	fmt.Printf("Failed:            %d\n", extract.Failed)
	fmt.Printf("Linked:            %d\n", enrich.Linked)
	fmt.Printf("Incidents Created: %d\n", enrich.Created)

	if queueStats.Failed > 0 {
		fmt.Printf("\n⚠️  %d jobs failed; they will be retried on the next run\n", queueStats.Failed)
	}

	if extract.Extracted > 0 {
		fmt.Printf("\n✅ Extracted %d events\n", extract.Extracted)
		fmt.Println("Next steps:")
		fmt.Println("  • Review unlinked events: vigia status")
		fmt.Println("  • Resolve them: vigia enrich")
	} else {
		fmt.Println("\nℹ️  No events extracted")
	}

	return nil
}
