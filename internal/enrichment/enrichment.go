// Package enrichment coordinates reference API lookups for stored proteins:
// canonical sequences and known-evidence modification annotations.
package enrichment

import (
	"context"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ptmscope/ptmscope/internal/datastore"
	"github.com/ptmscope/ptmscope/internal/logging"
	"github.com/ptmscope/ptmscope/internal/observability"
	"github.com/ptmscope/ptmscope/internal/uniprot"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "enrichment.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "enrichment", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize enrichment file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "enrichment")
		closeLogger = func() error { return nil }
	}
}

// maxConcurrentFetches bounds parallel protein enrichment so the reference
// APIs see a polite request rate even for large sessions.
const maxConcurrentFetches = 4

// Gateway is the subset of the reference API client the enricher needs.
type Gateway interface {
	FetchSequence(ctx context.Context, accession string) (string, error)
	FetchKnownSites(ctx context.Context, accession string) ([]uniprot.KnownSiteAnnotation, error)
}

// ProteinFailure records one protein that could not be enriched.
type ProteinFailure struct {
	Accession string `json:"accession"`
	Error     string `json:"error"`
}

// Result summarizes one enrichment run over a session.
type Result struct {
	ProteinsEnriched int              `json:"proteinsEnriched"`
	ProteinsFailed   int              `json:"proteinsFailed"`
	KnownSitesAdded  int              `json:"knownSitesAdded"`
	Failures         []ProteinFailure `json:"failures,omitempty"`
}

// Enricher fetches and stores reference data for session proteins.
type Enricher struct {
	ds      datastore.Interface
	gateway Gateway
	metrics *observability.Metrics
}

// NewEnricher creates a session enricher. Metrics may be nil.
func NewEnricher(ds datastore.Interface, gateway Gateway, metrics *observability.Metrics) *Enricher {
	return &Enricher{ds: ds, gateway: gateway, metrics: metrics}
}

// EnrichProtein fetches the sequence and known sites for one protein and
// stores them. Both fetches run concurrently, and nothing is written unless
// both succeed, so a failed run leaves the protein exactly as it was.
func (e *Enricher) EnrichProtein(ctx context.Context, protein *datastore.Protein) (int, error) {
	var (
		sequence    string
		annotations []uniprot.KnownSiteAnnotation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		start := time.Now()
		sequence, err = e.gateway.FetchSequence(gctx, protein.Accession)
		e.recordFetch("sequence", start, err)
		return err
	})
	g.Go(func() error {
		var err error
		start := time.Now()
		annotations, err = e.gateway.FetchKnownSites(gctx, protein.Accession)
		e.recordFetch("known_sites", start, err)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Warn("enrichment fetch failed",
			"accession", protein.Accession,
			"error", err)
		return 0, err
	}

	if err := e.ds.UpdateProteinSequence(protein.ID, sequence); err != nil {
		return 0, err
	}

	sites := make([]datastore.KnownSite, 0, len(annotations))
	for i := range annotations {
		a := &annotations[i]
		sites = append(sites, datastore.KnownSite{
			ProteinID:        protein.ID,
			Position:         a.Position,
			AminoAcid:        a.AminoAcid,
			ModificationType: a.ModificationType,
			References:       datastore.JoinReferences(a.References),
		})
	}
	if err := e.ds.ReplaceKnownSites(protein.ID, sites); err != nil {
		return 0, err
	}

	logger.Info("protein enriched",
		"accession", protein.Accession,
		"sequence_length", len(sequence),
		"known_sites", len(sites))
	return len(sites), nil
}

// EnrichSession enriches every protein in a session with bounded
// concurrency. Individual protein failures are collected rather than
// aborting the run.
func (e *Enricher) EnrichSession(ctx context.Context, sessionID string) (*Result, error) {
	proteins, err := e.ds.ListProteins(sessionID)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		result Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i := range proteins {
		protein := proteins[i]
		g.Go(func() error {
			added, err := e.EnrichProtein(gctx, &protein)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.ProteinsFailed++
				result.Failures = append(result.Failures, ProteinFailure{
					Accession: protein.Accession,
					Error:     err.Error(),
				})
				// Keep going; other proteins may still enrich.
				return nil
			}
			result.ProteinsEnriched++
			result.KnownSitesAdded += added
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Info("session enrichment finished",
		"session_id", sessionID,
		"proteins", len(proteins),
		"enriched", result.ProteinsEnriched,
		"failed", result.ProteinsFailed)
	return &result, nil
}

func (e *Enricher) recordFetch(operation string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.Enrichment.RecordOperation(operation, status)
	e.metrics.Enrichment.RecordOperationDuration(operation, time.Since(start).Seconds())
}

// Close releases the package log file.
func Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing enrichment logger: %v", err)
		}
	}
}
