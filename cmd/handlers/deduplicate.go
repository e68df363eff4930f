package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vigia/internal/logger"
	"vigia/internal/pipeline"
)

// NewDeduplicateCmd creates the deduplicate command: link-only incident
// resolution, never creating anything.
func NewDeduplicateCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "deduplicate",
		Short: "Link unlinked events to existing incidents",
		Long: `Score every unlinked extraction against existing incidents and link
the matches. Unlike enrich, deduplicate never creates incidents, so it
is safe to run while incident records are being curated by hand.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeduplicate(cmd.Context(), dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report matches without writing anything")

	return cmd
}

func runDeduplicate(ctx context.Context, dryRun bool) error {
	log := logger.Get()
	log.Info("Starting deduplication", "dry_run", dryRun)

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

	start := time.Now()
	p := pipeline.NewBuilder(db).WithConfig(cfg).Build(ctx)

	stats, err := p.EnrichBatch(ctx, false)
	if err != nil {
		return err
	}
	duration := time.Since(start)

	fmt.Println("\n📊 Deduplication Summary")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Duration: %s\n", duration.Round(time.Millisecond))
	fmt.Printf("Linked:   %d\n", stats.Linked)
	fmt.Printf("Skipped:  %d\n", stats.Skipped)
	fmt.Printf("Errors:   %d\n", stats.Errors)

	if dryRun {
		fmt.Println("\nℹ️  Dry run: nothing was written")
	} else if stats.Skipped > 0 {
		fmt.Printf("\nℹ️  %d events stayed unlinked\n", stats.Skipped)
		fmt.Println("   Create incidents for them: vigia enrich")
	}

	return nil
}
