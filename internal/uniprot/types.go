package uniprot

import "time"

// Config holds the enrichment gateway configuration
type Config struct {
	BaseURL        string        // UniProt REST base URL for sequence fetches
	ProteinsAPIURL string        // EBI Proteins API base URL for PTM features
	Timeout        time.Duration // per-request timeout
	CacheTTL       time.Duration // response cache lifetime
	RateLimitMS    int           // minimum milliseconds between requests
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://rest.uniprot.org/uniprotkb",
		ProteinsAPIURL: "https://www.ebi.ac.uk/proteins/api/features",
		Timeout:        30 * time.Second,
		CacheTTL:       24 * time.Hour,
		RateLimitMS:    200,
	}
}

// KnownSiteAnnotation is one known-evidence modification annotation parsed
// from the reference source.
type KnownSiteAnnotation struct {
	Position         int
	AminoAcid        string
	ModificationType string
	References       []string
}

// featuresResponse is the subset of the EBI Proteins API feature document
// this client consumes.
type featuresResponse struct {
	Accession string    `json:"accession"`
	Sequence  string    `json:"sequence"`
	Features  []feature `json:"features"`
}

type feature struct {
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Begin       string          `json:"begin"`
	End         string          `json:"end"`
	Evidences   []featureSource `json:"evidences"`
}

type featureSource struct {
	Code   string `json:"code"`
	Source *struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	} `json:"source"`
}

// Error represents an API error response body
type Error struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}
