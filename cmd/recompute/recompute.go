// Package recompute implements the recompute subcommand, a maintenance
// pass rebuilding every stored session summary from its records.
package recompute

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/isotrace/isotrace-go/internal/conf"
	"github.com/isotrace/isotrace-go/internal/datastore"
	"github.com/isotrace/isotrace-go/internal/logging"
)

// Command creates the recompute command
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild all session summaries from stored records",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runRecompute(settings)
		},
	}
}

func runRecompute(settings *conf.Settings) error {
	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database backend enabled, configure output.sqlite or output.mysql")
	}
	if err := store.Open(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error("Failed to close database", "error", err)
		}
	}()

	count, err := store.RecomputeSummaries()
	if err != nil {
		return fmt.Errorf("failed to recompute summaries: %w", err)
	}

	logging.Info("Summaries recomputed", "sessions", count)
	fmt.Printf("Recomputed summaries for %d sessions\n", count)
	return nil
}
