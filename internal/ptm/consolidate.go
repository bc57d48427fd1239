package ptm

import (
	"cmp"
	"slices"
)

// Consolidator folds raw observations into one ConsolidatedSite per
// ConsolidationKey. It is a single left-to-right fold over the input with
// O(1) additional memory per distinct key; the fold operations (count sum,
// probability max, per-condition sum/count) are commutative and associative,
// so partial folds merged with Merge yield identical results.
type Consolidator struct {
	sites map[ConsolidationKey]*ConsolidatedSite
}

// NewConsolidator returns an empty Consolidator.
func NewConsolidator() *Consolidator {
	return &Consolidator{
		sites: make(map[ConsolidationKey]*ConsolidatedSite),
	}
}

// Add folds one observation into the consolidated state. Observations with a
// missing position or modification type were already rejected by validation;
// Add silently ignores them as a safety net so a bad record can never create
// a phantom site.
func (c *Consolidator) Add(obs *RawObservation) {
	if obs.Position <= 0 || obs.ModificationType == "" {
		return
	}

	key := ConsolidationKey{
		Position:         obs.Position,
		ModificationType: obs.ModificationType,
		Evidence:         obs.Evidence,
	}

	site, seen := c.sites[key]
	if !seen {
		site = &ConsolidatedSite{
			Position:         obs.Position,
			ModificationType: obs.ModificationType,
			Evidence:         obs.Evidence,
			AminoAcid:        obs.AminoAcid,
			Conditions:       make(map[string]*ConditionStats),
		}
		c.sites[key] = site
	}

	site.PeptideCount++

	// First non-empty residue letter wins, advisory only.
	if site.AminoAcid == "" && obs.AminoAcid != "" {
		site.AminoAcid = obs.AminoAcid
	}

	// Probability is a confidence ceiling: keep the maximum, and stay
	// absent only while every contribution is absent.
	if obs.Probability != nil {
		if site.Probability == nil || *obs.Probability > *site.Probability {
			p := *obs.Probability
			site.Probability = &p
		}
	}

	label := conditionLabel(obs.Condition)
	cs, ok := site.Conditions[label]
	if !ok {
		cs = &ConditionStats{}
		site.Conditions[label] = cs
	}
	cs.PeptideCount++
	if finiteQuantity(obs.Quantity) {
		cs.QuantitySum += *obs.Quantity
		cs.QuantityCount++
	}

	site.addReferences(obs.References)
}

// Merge folds another consolidator's state into this one. Used to combine
// partial folds produced from independent row partitions.
func (c *Consolidator) Merge(other *Consolidator) {
	for key, os := range other.sites {
		site, seen := c.sites[key]
		if !seen {
			c.sites[key] = os
			continue
		}

		site.PeptideCount += os.PeptideCount
		if site.AminoAcid == "" {
			site.AminoAcid = os.AminoAcid
		}
		if os.Probability != nil {
			if site.Probability == nil || *os.Probability > *site.Probability {
				p := *os.Probability
				site.Probability = &p
			}
		}
		for label, ocs := range os.Conditions {
			cs, ok := site.Conditions[label]
			if !ok {
				site.Conditions[label] = ocs
				continue
			}
			cs.QuantitySum += ocs.QuantitySum
			cs.QuantityCount += ocs.QuantityCount
			cs.PeptideCount += ocs.PeptideCount
		}
		site.addReferences(os.References())
	}
}

// Len returns the number of distinct logical sites seen so far.
func (c *Consolidator) Len() int {
	return len(c.sites)
}

// Sites returns the consolidated sites ordered by position, then
// modification type, then evidence class.
func (c *Consolidator) Sites() []*ConsolidatedSite {
	out := make([]*ConsolidatedSite, 0, len(c.sites))
	for _, site := range c.sites {
		out = append(out, site)
	}
	slices.SortFunc(out, func(a, b *ConsolidatedSite) int {
		if n := cmp.Compare(a.Position, b.Position); n != 0 {
			return n
		}
		if n := cmp.Compare(a.ModificationType, b.ModificationType); n != 0 {
			return n
		}
		return cmp.Compare(string(a.Evidence), string(b.Evidence))
	})
	return out
}

// Consolidate is a convenience wrapper that folds a slice of observations
// and returns the ordered site records.
func Consolidate(observations []RawObservation) []*ConsolidatedSite {
	c := NewConsolidator()
	for i := range observations {
		c.Add(&observations[i])
	}
	return c.Sites()
}
