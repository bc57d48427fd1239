// model.go this code defines the data model for the application
package datastore

import "time"

// Session status values.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// AnalysisSession represents one uploaded dataset and its lifecycle.
type AnalysisSession struct {
	ID            string `gorm:"primaryKey;type:varchar(36)"` // UUID
	Name          string
	FileName      string
	Status        string `gorm:"type:varchar(20);index"` // processing, completed or failed
	TotalProteins int
	TotalPTMSites int
	CreatedAt     time.Time `gorm:"index"`

	Proteins []Protein `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// Protein represents a protein record scoped to a session. One row per
// (session, accession) pair, created on first sighting during upload; the
// sequence is populated later by the enrichment gateway.
type Protein struct {
	ID             uint   `gorm:"primaryKey"`
	SessionID      string `gorm:"uniqueIndex:idx_proteins_session_accession;not null"`
	Accession      string `gorm:"uniqueIndex:idx_proteins_session_accession;index:idx_proteins_accession;not null"`
	Name           string
	Gene           string
	Organism       string
	Sequence       string `gorm:"type:text"`
	SequenceLength int
	UpdatedAt      time.Time

	Observations []Observation `gorm:"foreignKey:ProteinID;constraint:OnDelete:CASCADE"`
	KnownSites   []KnownSite   `gorm:"foreignKey:ProteinID;constraint:OnDelete:CASCADE"`
}

// Observation is one raw experimental PTM observation row. Raw rows are the
// source of truth; consolidated views are always re-derived from them.
type Observation struct {
	ID               uint   `gorm:"primaryKey"`
	ProteinID        uint   `gorm:"index;not null"`
	Position         int    `gorm:"index:idx_observations_site"`
	AminoAcid        string `gorm:"type:varchar(1)"`
	ModificationType string `gorm:"index:idx_observations_site"`
	Probability      *float64
	Quantity         *float64
	FlankingRegion   string
	Multiplicity     int
	ExperimentName   string
	Condition        string
}

// KnownSite is a known-evidence modification annotation fetched from the
// reference annotation source. Rows are replaced wholesale on each
// successful fetch for a protein.
type KnownSite struct {
	ID               uint `gorm:"primaryKey"`
	ProteinID        uint `gorm:"index;not null"`
	Position         int
	AminoAcid        string `gorm:"type:varchar(1)"`
	ModificationType string
	References       string `gorm:"type:text"` // semicolon-joined literature identifiers
}

// ModificationCount is one entry of a session's modification-type summary.
type ModificationCount struct {
	ModificationType string `json:"modificationType"`
	Count            int    `json:"count"`
}
