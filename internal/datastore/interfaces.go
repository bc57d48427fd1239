// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ptmscope/ptmscope/internal/conf"
	"github.com/ptmscope/ptmscope/internal/errors"
)

// Interface abstracts the underlying database implementation and defines the
// operations the upload pipeline, enrichment and API layers depend on.
type Interface interface {
	Open() error
	Close() error

	// sessions
	CreateSession(session *AnalysisSession) error
	GetSession(id string) (AnalysisSession, error)
	ListSessions() ([]AnalysisSession, error)
	UpdateSession(session *AnalysisSession) error
	UpdateSessionStatus(id, status string) error
	DeleteSession(id string) error

	// proteins
	GetOrCreateProtein(protein *Protein) (created bool, err error)
	GetProtein(sessionID, accession string) (Protein, error)
	ListProteins(sessionID string) ([]Protein, error)
	UpdateProteinSequence(proteinID uint, sequence string) error
	CountProteins(sessionID string) (int64, error)

	// raw observations
	SaveObservations(observations []Observation) error
	GetObservations(proteinID uint) ([]Observation, error)
	CountObservations(sessionID string) (int64, error)

	// known-evidence sites
	ReplaceKnownSites(proteinID uint, sites []KnownSite) error
	GetKnownSites(proteinID uint) ([]KnownSite, error)

	// summaries
	ModificationSummary(sessionID string) ([]ModificationCount, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		// Settings validation rejects this combination before we get here.
		return nil
	}
}

// CreateSession stores a new analysis session.
func (ds *DataStore) CreateSession(session *AnalysisSession) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if err := ds.DB.Create(session).Error; err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by its ID.
func (ds *DataStore) GetSession(id string) (AnalysisSession, error) {
	var session AnalysisSession
	if err := ds.DB.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AnalysisSession{}, errors.Newf("session not found: %s", id).
				Category(errors.CategoryNotFound).
				Component("datastore").
				Context("session_id", id).
				Build()
		}
		return AnalysisSession{}, fmt.Errorf("getting session %s: %w", id, err)
	}
	return session, nil
}

// ListSessions retrieves all sessions, newest first.
func (ds *DataStore) ListSessions() ([]AnalysisSession, error) {
	var sessions []AnalysisSession
	if err := ds.DB.Order("created_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSession persists changed session fields.
func (ds *DataStore) UpdateSession(session *AnalysisSession) error {
	if err := ds.DB.Save(session).Error; err != nil {
		return fmt.Errorf("updating session %s: %w", session.ID, err)
	}
	return nil
}

// UpdateSessionStatus transitions a session's lifecycle status.
func (ds *DataStore) UpdateSessionStatus(id, status string) error {
	result := ds.DB.Model(&AnalysisSession{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("updating session %s status: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.Newf("session not found: %s", id).
			Category(errors.CategoryNotFound).
			Component("datastore").
			Build()
	}
	return nil
}

// DeleteSession removes a session and all proteins, observations and known
// sites scoped to it in one transaction. No orphans are permitted.
func (ds *DataStore) DeleteSession(id string) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		var proteinIDs []uint
		if err := tx.Model(&Protein{}).Where("session_id = ?", id).Pluck("id", &proteinIDs).Error; err != nil {
			return fmt.Errorf("finding proteins for session %s: %w", id, err)
		}

		if len(proteinIDs) > 0 {
			if err := tx.Where("protein_id IN ?", proteinIDs).Delete(&Observation{}).Error; err != nil {
				return fmt.Errorf("deleting observations for session %s: %w", id, err)
			}
			if err := tx.Where("protein_id IN ?", proteinIDs).Delete(&KnownSite{}).Error; err != nil {
				return fmt.Errorf("deleting known sites for session %s: %w", id, err)
			}
			if err := tx.Where("session_id = ?", id).Delete(&Protein{}).Error; err != nil {
				return fmt.Errorf("deleting proteins for session %s: %w", id, err)
			}
		}

		result := tx.Delete(&AnalysisSession{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("deleting session %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return errors.Newf("session not found: %s", id).
				Category(errors.CategoryNotFound).
				Component("datastore").
				Build()
		}
		return nil
	})
}

// GetOrCreateProtein looks up the protein for (session, accession) and
// creates it when absent. The first writer wins: an existing record's
// metadata is never overwritten, and the existing row is loaded into the
// argument so callers always see the stored state.
func (ds *DataStore) GetOrCreateProtein(protein *Protein) (bool, error) {
	var existing Protein
	err := ds.DB.Where("session_id = ? AND accession = ?", protein.SessionID, protein.Accession).
		First(&existing).Error
	if err == nil {
		*protein = existing
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("looking up protein %s: %w", protein.Accession, err)
	}

	protein.UpdatedAt = time.Now()
	if err := ds.DB.Create(protein).Error; err != nil {
		return false, fmt.Errorf("creating protein %s: %w", protein.Accession, err)
	}
	return true, nil
}

// GetProtein retrieves one protein by session and accession.
func (ds *DataStore) GetProtein(sessionID, accession string) (Protein, error) {
	var protein Protein
	err := ds.DB.Where("session_id = ? AND accession = ?", sessionID, accession).First(&protein).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Protein{}, errors.Newf("protein not found: %s", accession).
				Category(errors.CategoryNotFound).
				Component("datastore").
				Context("session_id", sessionID).
				Context("accession", accession).
				Build()
		}
		return Protein{}, fmt.Errorf("getting protein %s: %w", accession, err)
	}
	return protein, nil
}

// ListProteins retrieves all proteins of a session ordered by accession.
func (ds *DataStore) ListProteins(sessionID string) ([]Protein, error) {
	var proteins []Protein
	if err := ds.DB.Where("session_id = ?", sessionID).Order("accession ASC").Find(&proteins).Error; err != nil {
		return nil, fmt.Errorf("listing proteins for session %s: %w", sessionID, err)
	}
	return proteins, nil
}

// UpdateProteinSequence stores a fetched sequence and its length.
func (ds *DataStore) UpdateProteinSequence(proteinID uint, sequence string) error {
	updates := map[string]any{
		"sequence":        sequence,
		"sequence_length": len(sequence),
		"updated_at":      time.Now(),
	}
	if err := ds.DB.Model(&Protein{}).Where("id = ?", proteinID).Updates(updates).Error; err != nil {
		return fmt.Errorf("updating sequence for protein %d: %w", proteinID, err)
	}
	return nil
}

// CountProteins returns the number of proteins in a session.
func (ds *DataStore) CountProteins(sessionID string) (int64, error) {
	var count int64
	if err := ds.DB.Model(&Protein{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting proteins for session %s: %w", sessionID, err)
	}
	return count, nil
}

// SaveObservations stores a batch of raw observation rows in one transaction.
func (ds *DataStore) SaveObservations(observations []Observation) error {
	if len(observations) == 0 {
		return nil
	}
	if err := ds.DB.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(observations, 200).Error
	}); err != nil {
		return fmt.Errorf("saving %d observations: %w", len(observations), err)
	}
	return nil
}

// GetObservations retrieves the raw observation rows for a protein in
// insertion order, which preserves file order for deterministic folds.
func (ds *DataStore) GetObservations(proteinID uint) ([]Observation, error) {
	var observations []Observation
	if err := ds.DB.Where("protein_id = ?", proteinID).Order("id ASC").Find(&observations).Error; err != nil {
		return nil, fmt.Errorf("getting observations for protein %d: %w", proteinID, err)
	}
	return observations, nil
}

// CountObservations returns the number of raw observations in a session.
func (ds *DataStore) CountObservations(sessionID string) (int64, error) {
	var count int64
	err := ds.DB.Model(&Observation{}).
		Joins("JOIN proteins ON proteins.id = observations.protein_id").
		Where("proteins.session_id = ?", sessionID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting observations for session %s: %w", sessionID, err)
	}
	return count, nil
}

// ReplaceKnownSites swaps a protein's known-evidence annotations for a fresh
// set from the reference source. Runs in one transaction so a failed fetch
// can never leave the protein half-updated.
func (ds *DataStore) ReplaceKnownSites(proteinID uint, sites []KnownSite) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("protein_id = ?", proteinID).Delete(&KnownSite{}).Error; err != nil {
			return fmt.Errorf("deleting known sites for protein %d: %w", proteinID, err)
		}
		for i := range sites {
			sites[i].ProteinID = proteinID
		}
		if len(sites) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(sites, 200).Error; err != nil {
			return fmt.Errorf("saving known sites for protein %d: %w", proteinID, err)
		}
		return nil
	})
}

// GetKnownSites retrieves a protein's known-evidence annotations.
func (ds *DataStore) GetKnownSites(proteinID uint) ([]KnownSite, error) {
	var sites []KnownSite
	if err := ds.DB.Where("protein_id = ?", proteinID).Order("position ASC").Find(&sites).Error; err != nil {
		return nil, fmt.Errorf("getting known sites for protein %d: %w", proteinID, err)
	}
	return sites, nil
}

// ModificationSummary returns per-modification-type observation counts for a
// session, most frequent first.
func (ds *DataStore) ModificationSummary(sessionID string) ([]ModificationCount, error) {
	var summary []ModificationCount
	err := ds.DB.Model(&Observation{}).
		Select("observations.modification_type, COUNT(*) as count").
		Joins("JOIN proteins ON proteins.id = observations.protein_id").
		Where("proteins.session_id = ?", sessionID).
		Group("observations.modification_type").
		Order("count DESC").
		Scan(&summary).Error
	if err != nil {
		return nil, fmt.Errorf("building modification summary for session %s: %w", sessionID, err)
	}
	return summary, nil
}

// JoinReferences flattens literature identifiers for storage in a KnownSite row.
func JoinReferences(refs []string) string {
	return strings.Join(refs, "; ")
}

// SplitReferences restores literature identifiers from a stored KnownSite row.
func SplitReferences(joined string) []string {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&AnalysisSession{}, &Protein{}, &Observation{}, &KnownSite{}); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}

	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
