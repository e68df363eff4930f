package handlers

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vigia/internal/core"
)

// NewStatusCmd creates the status command, a read-only snapshot of the
// pipeline's backlog and output.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline counters",
		Long: `Show how many sources sit at each lifecycle stage, how many events
were extracted, and how many incidents exist. Reads only; nothing is
enqueued or modified.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}
}

func runStatus(ctx context.Context) error {
	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	byStatus, err := db.Sources().CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("counting sources: %w", err)
	}

	events, err := db.Events().Count(ctx)
	if err != nil {
		return fmt.Errorf("counting events: %w", err)
	}
	linked, err := db.Events().CountLinked(ctx)
	if err != nil {
		return fmt.Errorf("counting linked events: %w", err)
	}

	incidents, err := db.Incidents().Count(ctx)
	if err != nil {
		return fmt.Errorf("counting incidents: %w", err)
	}
	confirmed, err := db.Incidents().CountConfirmed(ctx)
	if err != nil {
		return fmt.Errorf("counting confirmed incidents: %w", err)
	}

	totalSources := 0
	for _, n := range byStatus {
		totalSources += n
	}

	fmt.Println("\n📊 Pipeline Status")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Stage\tCount\n")
	fmt.Fprintf(w, "━━━━━━━━━━━━━━━━━━\t━━━━━━\n")
	fmt.Fprintf(w, "Sources (total)\t%d\n", totalSources)
	fmt.Fprintf(w, "  pending\t%d\n", byStatus[core.StatusPending])
	fmt.Fprintf(w, "  downloaded\t%d\n", byStatus[core.StatusDownloaded])
	fmt.Fprintf(w, "  processed\t%d\n", byStatus[core.StatusProcessed])
	fmt.Fprintf(w, "  failed\t%d\n", byStatus[core.StatusFailed])
	fmt.Fprintf(w, "Events\t%d\n", events)
	fmt.Fprintf(w, "  linked\t%d\n", linked)
	fmt.Fprintf(w, "  unlinked\t%d\n", events-linked)
	fmt.Fprintf(w, "Incidents\t%d\n", incidents)
	fmt.Fprintf(w, "  confirmed\t%d\n", confirmed)
	fmt.Fprintf(w, "  candidates\t%d\n", incidents-confirmed)
	w.Flush()

	backlog := byStatus[core.StatusPending] + byStatus[core.StatusDownloaded]
	unlinked := events - linked

	if backlog == 0 && unlinked == 0 {
		fmt.Println("\n✅ Pipeline is caught up")
	} else {
		fmt.Println("\nNext steps:")
		if byStatus[core.StatusPending] > 0 {
			fmt.Printf("  • Download %d pending sources: vigia fetch\n", byStatus[core.StatusPending])
		}
		if byStatus[core.StatusDownloaded] > 0 {
			fmt.Printf("  • Extract %d downloaded sources: vigia extract\n", byStatus[core.StatusDownloaded])
		}
		if unlinked > 0 {
			fmt.Printf("  • Resolve %d unlinked events: vigia enrich\n", unlinked)
		}
	}

	return nil
}
