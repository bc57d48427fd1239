// Package serve implements the HTTP server command.
package serve

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	api "github.com/ptmscope/ptmscope/internal/api/v2"
	"github.com/ptmscope/ptmscope/internal/conf"
	"github.com/ptmscope/ptmscope/internal/datastore"
	"github.com/ptmscope/ptmscope/internal/enrichment"
	"github.com/ptmscope/ptmscope/internal/ingest"
	"github.com/ptmscope/ptmscope/internal/logging"
	"github.com/ptmscope/ptmscope/internal/observability"
	"github.com/ptmscope/ptmscope/internal/uniprot"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the PTM viewer HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVarP(&settings.WebServer.Port, "port", "p", viper.GetString("webserver.port"), "Port to listen on")
	cmd.Flags().BoolVar(&settings.UniProt.Enabled, "uniprot", viper.GetBool("uniprot.enabled"), "Enable reference API enrichment")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}

// runServer wires the datastore, metrics, enrichment gateway and API
// controller together and serves until interrupted.
func runServer(settings *conf.Settings) error {
	ds := datastore.New(settings)
	if err := ds.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logging.Error("Failed to close datastore", "error", err)
		}
	}()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	var enricher *enrichment.Enricher
	if settings.UniProt.Enabled {
		client := uniprot.NewClient(uniprot.Config{
			BaseURL:        settings.UniProt.BaseURL,
			ProteinsAPIURL: settings.UniProt.ProteinsAPIURL,
			Timeout:        time.Duration(settings.UniProt.Timeout) * time.Second,
			CacheTTL:       time.Duration(settings.UniProt.CacheTTL) * time.Hour,
			RateLimitMS:    settings.UniProt.RateLimitMS,
		})
		defer client.Close()
		enricher = enrichment.NewEnricher(ds, client, metrics)
	} else {
		logging.Info("Reference API enrichment disabled")
	}

	processor := ingest.NewProcessor(ds, settings, metrics)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	controller, err := api.New(e, ds, settings, processor, enricher, metrics, log.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize API: %w", err)
	}
	defer controller.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		addr := ":" + settings.WebServer.Port
		logging.Info("HTTP server starting", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logging.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
