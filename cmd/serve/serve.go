// Package serve implements the serve subcommand running the HTTP facade.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/isotrace/isotrace-go/internal/conf"
	"github.com/isotrace/isotrace-go/internal/datastore"
	"github.com/isotrace/isotrace-go/internal/httpserver"
	"github.com/isotrace/isotrace-go/internal/logging"
	"github.com/isotrace/isotrace-go/internal/observability"
)

// Command creates the serve command
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis aggregation web server",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServer(settings)
		},
	}
}

// runServer opens the store and serves the API until interrupted.
func runServer(settings *conf.Settings) error {
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

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	store.SetMetrics(metrics.Datastore)

	server := httpserver.New(settings, store, metrics)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logging.Info("Received signal, shutting down", "signal", sig.String())
	}

	if err := server.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}
	return nil
}
