/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vigia/internal/config"
	"vigia/internal/persistence"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vigia",
		Short: "Vigia tracks violent-death reports from local news",
		Long: `Vigia monitors news coverage of violent deaths in Maceió.

It searches the news aggregator for candidate articles, downloads and
cleans their bodies, extracts structured events with a language model,
and resolves the extractions into canonical incidents. Each stage is
also available as its own subcommand for partial or repeated runs.`,
	}

	// Initialize configuration
	cobra.OnInitialize(initConfig)

	// Add persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vigia.yaml)")

	// Add subcommands
	rootCmd.AddCommand(NewFetchCmd())
	rootCmd.AddCommand(NewExtractCmd())
	rootCmd.AddCommand(NewEnrichCmd())
	rootCmd.AddCommand(NewDeduplicateCmd())
	rootCmd.AddCommand(NewRunAllCmd())
	rootCmd.AddCommand(NewStatusCmd())
	rootCmd.AddCommand(NewMigrateCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
}

// getDatabase is a helper function to load config and connect to database
func getDatabase() (persistence.Database, error) {
	cfg := config.Get()
	dbURL := cfg.Database.URL
	if dbURL == "" {
		// Try environment variable fallback
		dbURL = os.Getenv("DATABASE_URL")
		if dbURL == "" {
			return nil, fmt.Errorf("database connection not configured (set database.url in config or DATABASE_URL env var)")
		}
	}

	db, err := persistence.NewPostgresDB(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// signalContext derives a context canceled by SIGINT or SIGTERM, so
// workers finish their current record and stop between records.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
