// Package ingest runs the upload pipeline: it parses a tab-separated result
// file, materializes session-scoped protein records and stores the validated
// raw observation rows.
package ingest

import (
	"context"
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ptmscope/ptmscope/internal/conf"
	"github.com/ptmscope/ptmscope/internal/datastore"
	"github.com/ptmscope/ptmscope/internal/errors"
	"github.com/ptmscope/ptmscope/internal/logging"
	"github.com/ptmscope/ptmscope/internal/observability"
	"github.com/ptmscope/ptmscope/internal/parser"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "ingest.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "ingest", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize ingest file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "ingest")
		closeLogger = func() error { return nil }
	}
}

// UploadResult summarizes one processed upload.
type UploadResult struct {
	Success          bool              `json:"success"`
	Processed        ProcessedCounts   `json:"processed"`
	ValidationErrors []parser.RowError `json:"validationErrors,omitempty"`
	TotalRowErrors   int               `json:"totalRowErrors"`
}

// ProcessedCounts reports what the upload added to the session.
type ProcessedCounts struct {
	Proteins int `json:"proteins"`
	PTMSites int `json:"ptmSites"`
}

// Processor drives uploads into the datastore.
type Processor struct {
	ds       datastore.Interface
	settings *conf.Settings
	metrics  *observability.Metrics
}

// NewProcessor creates an upload processor. Metrics may be nil.
func NewProcessor(ds datastore.Interface, settings *conf.Settings, metrics *observability.Metrics) *Processor {
	return &Processor{ds: ds, settings: settings, metrics: metrics}
}

// ProcessUpload parses the uploaded file and stores its observations under
// the given session. A structural failure (unreadable header, missing
// required columns) marks the session failed and commits no data at all.
// Row-level validation errors only skip the offending rows.
func (p *Processor) ProcessUpload(ctx context.Context, sessionID, fileName string, r io.Reader) (*UploadResult, error) {
	start := time.Now()

	session, err := p.ds.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	result, err := parser.Parse(r)
	if err != nil {
		if statusErr := p.ds.UpdateSessionStatus(sessionID, datastore.StatusFailed); statusErr != nil {
			logger.Error("failed to mark session failed", "session_id", sessionID, "error", statusErr)
		}
		if p.metrics != nil {
			p.metrics.Upload.RecordUpload(datastore.StatusFailed)
		}
		logger.Error("upload parse failed",
			"session_id", sessionID,
			"file_name", fileName,
			"error", err)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Newf("upload cancelled: %w", err).
			Category(errors.CategoryTimeout).
			Context("session_id", sessionID).
			Component("ingest").
			Build()
	}

	proteinIDs, err := p.resolveProteins(session.ID, result)
	if err != nil {
		return nil, p.failSession(sessionID, err)
	}

	rows := make([]datastore.Observation, 0, len(result.Observations))
	for i := range result.Observations {
		obs := &result.Observations[i]
		rows = append(rows, datastore.Observation{
			ProteinID:        proteinIDs[obs.Accession],
			Position:         obs.Position,
			AminoAcid:        obs.AminoAcid,
			ModificationType: obs.ModificationType,
			Probability:      obs.Probability,
			Quantity:         obs.Quantity,
			FlankingRegion:   obs.FlankingRegion,
			Multiplicity:     obs.Multiplicity,
			ExperimentName:   obs.ExperimentName,
			Condition:        obs.Condition,
		})
	}
	if err := p.ds.SaveObservations(rows); err != nil {
		return nil, p.failSession(sessionID, err)
	}

	// Session totals reflect everything stored for the session, which can
	// span more than one uploaded file.
	totalProteins, err := p.ds.CountProteins(session.ID)
	if err != nil {
		return nil, err
	}
	totalObservations, err := p.ds.CountObservations(session.ID)
	if err != nil {
		return nil, err
	}

	session.FileName = fileName
	session.Status = datastore.StatusCompleted
	session.TotalProteins = int(totalProteins)
	session.TotalPTMSites = int(totalObservations)
	if err := p.ds.UpdateSession(&session); err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.Upload.RecordUpload(datastore.StatusCompleted)
		p.metrics.Upload.RecordRows(len(rows), len(result.RowErrors))
		p.metrics.Upload.RecordUploadDuration(time.Since(start).Seconds())
	}

	logger.Info("upload processed",
		"session_id", sessionID,
		"file_name", fileName,
		"proteins", len(proteinIDs),
		"observations", len(rows),
		"row_errors", len(result.RowErrors),
		"duration_ms", time.Since(start).Milliseconds())

	return &UploadResult{
		Success: true,
		Processed: ProcessedCounts{
			Proteins: len(proteinIDs),
			PTMSites: len(rows),
		},
		ValidationErrors: capErrors(result.RowErrors, p.maxErrorsReported()),
		TotalRowErrors:   len(result.RowErrors),
	}, nil
}

// resolveProteins creates one protein row per distinct accession in file
// order and returns the accession to row-ID mapping. Existing rows are
// reused untouched, so re-uploading into a session never clobbers metadata.
func (p *Processor) resolveProteins(sessionID string, result *parser.Result) (map[string]uint, error) {
	proteinIDs := make(map[string]uint)
	for i := range result.Observations {
		accession := result.Observations[i].Accession
		if _, ok := proteinIDs[accession]; ok {
			continue
		}
		protein := datastore.Protein{
			SessionID: sessionID,
			Accession: accession,
			Organism:  p.settings.Upload.DefaultOrganism,
		}
		created, err := p.ds.GetOrCreateProtein(&protein)
		if err != nil {
			return nil, err
		}
		if created {
			logger.Debug("protein created", "session_id", sessionID, "accession", accession)
		}
		proteinIDs[accession] = protein.ID
	}
	return proteinIDs, nil
}

func (p *Processor) failSession(sessionID string, err error) error {
	if statusErr := p.ds.UpdateSessionStatus(sessionID, datastore.StatusFailed); statusErr != nil {
		logger.Error("failed to mark session failed", "session_id", sessionID, "error", statusErr)
	}
	if p.metrics != nil {
		p.metrics.Upload.RecordUpload(datastore.StatusFailed)
	}
	return err
}

func (p *Processor) maxErrorsReported() int {
	if p.settings == nil || p.settings.Upload.MaxErrorsReported <= 0 {
		return conf.DefaultMaxErrorsReported
	}
	return p.settings.Upload.MaxErrorsReported
}

func capErrors(rowErrors []parser.RowError, limit int) []parser.RowError {
	if len(rowErrors) <= limit {
		return rowErrors
	}
	return rowErrors[:limit]
}

// Close releases the package log file.
func Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing ingest logger: %v", err)
		}
	}
}
