// Package importfile implements the offline import command.
package importfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ptmscope/ptmscope/internal/conf"
	"github.com/ptmscope/ptmscope/internal/datastore"
	"github.com/ptmscope/ptmscope/internal/enrichment"
	"github.com/ptmscope/ptmscope/internal/ingest"
	"github.com/ptmscope/ptmscope/internal/logging"
	"github.com/ptmscope/ptmscope/internal/uniprot"
)

// Command creates the import command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		sessionName string
		enrich      bool
	)

	cmd := &cobra.Command{
		Use:   "import [results.tsv]",
		Short: "Import a proteomics result file into a new session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(settings, args[0], sessionName, enrich)
		},
	}

	cmd.Flags().StringVar(&sessionName, "session-name", "", "Name for the new session (defaults to the file name)")
	cmd.Flags().BoolVar(&enrich, "enrich", false, "Fetch sequences and known sites after import")
	if err := viper.BindPFlag("uniprot.enabled", cmd.Flags().Lookup("enrich")); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func runImport(settings *conf.Settings, filePath, sessionName string, enrich bool) error {
	ds := datastore.New(settings)
	if err := ds.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logging.Error("Failed to close datastore", "error", err)
		}
	}()

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Error("Failed to close input file", "error", err)
		}
	}()

	if sessionName == "" {
		sessionName = filepath.Base(filePath)
	}
	session := &datastore.AnalysisSession{
		ID:     uuid.New().String(),
		Name:   sessionName,
		Status: datastore.StatusProcessing,
	}
	if err := ds.CreateSession(session); err != nil {
		return err
	}

	processor := ingest.NewProcessor(ds, settings, nil)
	result, err := processor.ProcessUpload(context.Background(), session.ID, filepath.Base(filePath), file)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("Session %s created\n", session.ID)
	fmt.Printf("  proteins:  %d\n", result.Processed.Proteins)
	fmt.Printf("  PTM sites: %d\n", result.Processed.PTMSites)
	if result.TotalRowErrors > 0 {
		fmt.Printf("  skipped rows: %d\n", result.TotalRowErrors)
		for _, rowErr := range result.ValidationErrors {
			fmt.Printf("    row %d: %s\n", rowErr.Row, rowErr.Message)
		}
	}

	if !enrich {
		return nil
	}

	client := uniprot.NewClient(uniprot.Config{
		BaseURL:        settings.UniProt.BaseURL,
		ProteinsAPIURL: settings.UniProt.ProteinsAPIURL,
		Timeout:        time.Duration(settings.UniProt.Timeout) * time.Second,
		CacheTTL:       time.Duration(settings.UniProt.CacheTTL) * time.Hour,
		RateLimitMS:    settings.UniProt.RateLimitMS,
	})
	defer client.Close()

	enricher := enrichment.NewEnricher(ds, client, nil)
	enrichResult, err := enricher.EnrichSession(context.Background(), session.ID)
	if err != nil {
		return fmt.Errorf("enrichment failed: %w", err)
	}
	fmt.Printf("  enriched proteins: %d (failed: %d)\n", enrichResult.ProteinsEnriched, enrichResult.ProteinsFailed)
	for _, failure := range enrichResult.Failures {
		fmt.Printf("    %s: %s\n", failure.Accession, failure.Error)
	}

	return nil
}
