package handlers

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vigia/internal/persistence"
)

// NewMigrateCmd creates the migrate command for database schema management
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage database schema migrations.

Subcommands:
  up       Apply all pending migrations
  status   Show migration status

Applied migrations are tracked in the schema_migrations table and new
ones run in sequential order, each inside its own transaction.

Examples:
  # Apply all pending migrations
  vigia migrate up

  # Check migration status
  vigia migrate status`,
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateStatusCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd.Context())
		},
	}
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd.Context())
		},
	}
}

func runMigrateUp(ctx context.Context) error {
	migrator, closeDB, err := getMigrator()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Println("✅ All migrations applied")
	return nil
}

func runMigrateStatus(ctx context.Context) error {
	migrator, closeDB, err := getMigrator()
	if err != nil {
		return err
	}
	defer closeDB()

	status, err := migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	if len(status) == 0 {
		fmt.Println("No migrations found")
		return nil
	}

	fmt.Println("\n📊 Migration Status")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	pending := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Version\tStatus\tDescription\n")
	for _, m := range status {
		state := "applied"
		if !m.Applied {
			state = "pending"
			pending++
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, state, m.Description)
	}
	w.Flush()

	fmt.Printf("\nApplied: %d | Pending: %d\n", len(status)-pending, pending)
	if pending > 0 {
		fmt.Println("Run 'vigia migrate up' to apply pending migrations")
	}
	return nil
}

// getMigrator connects to the database and returns a migration manager
// plus the close function for the underlying connection.
func getMigrator() (*persistence.MigrationManager, func() error, error) {
	db, err := getDatabase()
	if err != nil {
		return nil, nil, err
	}

	pgDB, ok := db.(*persistence.PostgresDB)
	if !ok {
		db.Close()
		return nil, nil, fmt.Errorf("migrations require a PostgreSQL database")
	}

	return persistence.NewMigrationManager(pgDB), db.Close, nil
}
