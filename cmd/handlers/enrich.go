package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vigia/internal/logger"
	"vigia/internal/pipeline"
)

// NewEnrichCmd creates the enrich command: incident resolution for
// unlinked extractions, creating incidents for the unmatched.
func NewEnrichCmd() *cobra.Command {
	var (
		dryRun     bool
		noCreate   bool
		maxWorkers int
	)

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Resolve extracted events into canonical incidents",
		Long: `Score every unlinked extraction against incidents within one day of
its date. Matches at or above the threshold are linked; the rest get a
new unconfirmed incident unless --no-create is set.

The whole sweep commits once, so an incident created for one event is
already a match candidate for the next event in the same run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnrich(cmd.Context(), dryRun, noCreate, maxWorkers)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report decisions without writing anything")
	cmd.Flags().BoolVar(&noCreate, "no-create", false, "Only link to existing incidents, never create")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "Worker pool size for chained stages (default from config)")

	return cmd
}

func runEnrich(ctx context.Context, dryRun, noCreate bool, maxWorkers int) error {
	log := logger.Get()
	log.Info("Starting enrichment", "dry_run", dryRun, "no_create", noCreate)

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
	cfg.DryRun = dryRun
	cfg.AutoCreate = !noCreate
	if maxWorkers > 0 {
		cfg.Workers = maxWorkers
	}

	start := time.Now()
	p := pipeline.NewBuilder(db).WithConfig(cfg).Build(ctx)

	stats, err := p.EnrichBatch(ctx, cfg.AutoCreate)
	if err != nil {
		return err
	}
	duration := time.Since(start)

	fmt.Println("\n📊 Enrichment Summary")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Duration:          %s\n", duration.Round(time.Millisecond))
	fmt.Printf("Linked:            %d\n", stats.Linked)
	fmt.Printf("Incidents Created: %d\n", stats.Created)
	fmt.Printf("Skipped:           %d\n", stats.Skipped)
	fmt.Printf("Errors:            %d\n", stats.Errors)

	if dryRun {
		fmt.Println("\nℹ️  Dry run: nothing was written")
	} else if stats.Linked+stats.Created > 0 {
		fmt.Printf("\n✅ Resolved %d events\n", stats.Linked+stats.Created)
	} else {
		fmt.Println("\nℹ️  No unlinked events with usable dates")
	}

	return nil
}
