// Package ptm contains the PTM site data model, the consolidation engine
// that folds per-peptide observations into logical site records, and the
// sequence window extractor used for context display.
package ptm

import (
	"maps"
	"math"
	"slices"
	"strings"
)

// EvidenceClass distinguishes sites observed in an uploaded dataset from
// sites imported from a reference annotation source. Sites of different
// evidence classes at the same position never merge.
type EvidenceClass string

const (
	EvidenceExperimental EvidenceClass = "experimental"
	EvidenceKnown        EvidenceClass = "known"
)

// ConditionUnknown is the sentinel bucket for observations that carry no
// experimental condition label.
const ConditionUnknown = "Unknown"

// RawObservation is one per-peptide PTM observation, either a validated TSV
// row or a known-modification annotation from the enrichment gateway.
type RawObservation struct {
	Accession        string
	Position         int    // 1-based residue position on the protein
	AminoAcid        string // single residue letter, advisory
	ModificationType string
	Evidence         EvidenceClass
	Probability      *float64 // site localization confidence 0..1, nil if absent
	Quantity         *float64 // intensity, nil if absent
	FlankingRegion   string
	Multiplicity     int
	ExperimentName   string
	Condition        string
	References       []string // literature identifiers, known evidence only
}

// ConsolidationKey identifies one logical PTM site within a protein scope.
// Condition is deliberately not part of the key; it is a secondary grouping
// inside a site.
type ConsolidationKey struct {
	Position         int
	ModificationType string
	Evidence         EvidenceClass
}

// ConditionStats accumulates per-condition quantitative evidence for a site.
type ConditionStats struct {
	QuantitySum   float64
	QuantityCount int
	PeptideCount  int
}

// AverageQuantity returns the mean quantity for the condition and whether it
// is defined. It is undefined when no finite quantity was observed.
func (cs *ConditionStats) AverageQuantity() (float64, bool) {
	if cs.QuantityCount == 0 {
		return 0, false
	}
	return cs.QuantitySum / float64(cs.QuantityCount), true
}

// ConsolidatedSite is one logical PTM site, the aggregate of every raw
// observation sharing a ConsolidationKey.
type ConsolidatedSite struct {
	Position         int
	ModificationType string
	Evidence         EvidenceClass
	AminoAcid        string // first non-empty residue letter seen

	// PeptideCount is the total number of observations folded in. It always
	// equals the sum of the per-condition peptide counts.
	PeptideCount int

	// Probability is the running maximum across contributing observations.
	// nil means no contributing observation carried a probability.
	Probability *float64

	// Conditions maps condition label (or ConditionUnknown) to its stats.
	Conditions map[string]*ConditionStats

	references map[string]struct{}
}

// References returns the site's literature identifiers sorted for stable output.
func (s *ConsolidatedSite) References() []string {
	if len(s.references) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(s.references))
}

// addReferences records literature identifiers, ignoring blanks.
func (s *ConsolidatedSite) addReferences(refs []string) {
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if s.references == nil {
			s.references = make(map[string]struct{})
		}
		s.references[ref] = struct{}{}
	}
}

// ConditionLabels returns the site's condition labels sorted for stable output.
func (s *ConsolidatedSite) ConditionLabels() []string {
	return slices.Sorted(maps.Keys(s.Conditions))
}

// QuantifiedConditionCount reports how many conditions carry quantitative
// evidence: a non-sentinel label alone is not enough, at least one finite
// quantity must have been observed for the condition.
func (s *ConsolidatedSite) QuantifiedConditionCount() int {
	n := 0
	for label, cs := range s.Conditions {
		if label != ConditionUnknown && cs.QuantityCount > 0 {
			n++
		}
	}
	return n
}

// conditionLabel normalizes a raw condition string to its grouping bucket.
func conditionLabel(condition string) string {
	label := strings.TrimSpace(condition)
	if label == "" {
		return ConditionUnknown
	}
	return label
}

// finiteQuantity reports whether the observation carries a usable quantity.
func finiteQuantity(q *float64) bool {
	return q != nil && !math.IsNaN(*q) && !math.IsInf(*q, 0)
}
