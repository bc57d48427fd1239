package ptm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(v float64) *float64 { return &v }

// obs builds an experimental observation with the fields most tests vary.
func obs(pos int, mod string, prob, qty *float64, condition string) RawObservation {
	return RawObservation{
		Accession:        "P04637",
		Position:         pos,
		AminoAcid:        "S",
		ModificationType: mod,
		Evidence:         EvidenceExperimental,
		Probability:      prob,
		Quantity:         qty,
		Multiplicity:     1,
		Condition:        condition,
	}
}

func TestConsolidateTwoConditionsOneSite(t *testing.T) {
	t.Parallel()

	sites := Consolidate([]RawObservation{
		obs(10, "Oxidation (M)", fptr(0.8), fptr(5.0), "A"),
		obs(10, "Oxidation (M)", fptr(0.9), fptr(7.0), "B"),
	})

	require.Len(t, sites, 1)
	site := sites[0]
	assert.Equal(t, 10, site.Position)
	assert.Equal(t, 2, site.PeptideCount)
	require.NotNil(t, site.Probability)
	assert.InDelta(t, 0.9, *site.Probability, 1e-9)

	require.Len(t, site.Conditions, 2)
	avgA, ok := site.Conditions["A"].AverageQuantity()
	require.True(t, ok)
	assert.InDelta(t, 5.0, avgA, 1e-9)
	assert.Equal(t, 1, site.Conditions["A"].PeptideCount)

	avgB, ok := site.Conditions["B"].AverageQuantity()
	require.True(t, ok)
	assert.InDelta(t, 7.0, avgB, 1e-9)
	assert.Equal(t, 1, site.Conditions["B"].PeptideCount)
}

func TestConsolidateDistinctKeys(t *testing.T) {
	t.Parallel()

	known := obs(10, "Phospho (S)", nil, nil, "")
	known.Evidence = EvidenceKnown
	known.References = []string{"PMID:12345"}

	sites := Consolidate([]RawObservation{
		obs(10, "Phospho (S)", fptr(0.5), nil, "A"),
		obs(10, "Oxidation (M)", fptr(0.5), nil, "A"),
		obs(11, "Phospho (S)", fptr(0.5), nil, "A"),
		known,
	})

	// One site per distinct (position, modification, evidence) triple;
	// known evidence never merges with experimental at the same position.
	assert.Len(t, sites, 4)
}

func TestPeptideCountInvariantHoldsAfterEveryFold(t *testing.T) {
	t.Parallel()

	rows := []RawObservation{
		obs(3, "Phospho (S)", fptr(0.2), fptr(1.0), "A"),
		obs(3, "Phospho (S)", nil, nil, ""),
		obs(3, "Phospho (S)", fptr(0.7), fptr(2.5), "A"),
		obs(3, "Phospho (S)", fptr(0.4), nil, "B"),
		obs(9, "Acetyl (K)", nil, fptr(3.0), "B"),
	}

	c := NewConsolidator()
	for i := range rows {
		c.Add(&rows[i])
		for _, site := range c.Sites() {
			sum := 0
			for _, cs := range site.Conditions {
				sum += cs.PeptideCount
			}
			assert.Equal(t, site.PeptideCount, sum)
		}
	}
}

func TestProbabilityMaxSemantics(t *testing.T) {
	t.Parallel()

	t.Run("never decreases", func(t *testing.T) {
		t.Parallel()
		c := NewConsolidator()
		probs := []float64{0.3, 0.9, 0.5, 0.1}
		var prev float64
		for _, p := range probs {
			o := obs(5, "Phospho (S)", fptr(p), nil, "A")
			c.Add(&o)
			site := c.Sites()[0]
			require.NotNil(t, site.Probability)
			assert.GreaterOrEqual(t, *site.Probability, p)
			assert.GreaterOrEqual(t, *site.Probability, prev)
			prev = *site.Probability
		}
		assert.InDelta(t, 0.9, prev, 1e-9)
	})

	t.Run("absent stays absent only when all absent", func(t *testing.T) {
		t.Parallel()
		c := NewConsolidator()
		o1 := obs(5, "Phospho (S)", nil, nil, "A")
		o2 := obs(5, "Phospho (S)", nil, nil, "B")
		c.Add(&o1)
		c.Add(&o2)
		assert.Nil(t, c.Sites()[0].Probability)

		o3 := obs(5, "Phospho (S)", fptr(0.4), nil, "A")
		c.Add(&o3)
		site := c.Sites()[0]
		require.NotNil(t, site.Probability)
		assert.InDelta(t, 0.4, *site.Probability, 1e-9)
	})
}

func TestConditionSentinelAndQuantifiedCount(t *testing.T) {
	t.Parallel()

	sites := Consolidate([]RawObservation{
		obs(7, "Oxidation (M)", nil, fptr(2.0), "  "),   // sentinel bucket
		obs(7, "Oxidation (M)", nil, nil, ""),           // sentinel bucket, no quantity
		obs(7, "Oxidation (M)", nil, fptr(4.0), "Ctrl"), // labeled with quantity
		obs(7, "Oxidation (M)", nil, nil, "Starved"),    // labeled without quantity
	})

	require.Len(t, sites, 1)
	site := sites[0]
	require.Len(t, site.Conditions, 3)
	assert.Equal(t, 2, site.Conditions[ConditionUnknown].PeptideCount)
	assert.Equal(t, 1, site.Conditions[ConditionUnknown].QuantityCount)

	// Only Ctrl counts: the sentinel label is excluded and Starved has no
	// finite quantity.
	assert.Equal(t, 1, site.QuantifiedConditionCount())

	_, ok := site.Conditions["Starved"].AverageQuantity()
	assert.False(t, ok, "average must be reported as absent, not divided by zero")
}

func TestNonFiniteQuantitiesIgnored(t *testing.T) {
	t.Parallel()

	sites := Consolidate([]RawObservation{
		obs(2, "Phospho (S)", nil, fptr(math.NaN()), "A"),
		obs(2, "Phospho (S)", nil, fptr(math.Inf(1)), "A"),
		obs(2, "Phospho (S)", nil, fptr(6.0), "A"),
	})

	require.Len(t, sites, 1)
	cs := sites[0].Conditions["A"]
	assert.Equal(t, 3, cs.PeptideCount)
	assert.Equal(t, 1, cs.QuantityCount)
	avg, ok := cs.AverageQuantity()
	require.True(t, ok)
	assert.InDelta(t, 6.0, avg, 1e-9)
}

func TestFirstSeenAminoAcidKept(t *testing.T) {
	t.Parallel()

	c := NewConsolidator()
	o1 := obs(4, "Phospho (S)", nil, nil, "A")
	o1.AminoAcid = ""
	o2 := obs(4, "Phospho (S)", nil, nil, "A")
	o2.AminoAcid = "T"
	o3 := obs(4, "Phospho (S)", nil, nil, "A")
	o3.AminoAcid = "S"
	c.Add(&o1)
	c.Add(&o2)
	c.Add(&o3)

	assert.Equal(t, "T", c.Sites()[0].AminoAcid)
}

func TestReferencesDeduplicated(t *testing.T) {
	t.Parallel()

	k1 := obs(12, "Acetyl (K)", nil, nil, "")
	k1.Evidence = EvidenceKnown
	k1.References = []string{"PMID:2", "PMID:1"}
	k2 := obs(12, "Acetyl (K)", nil, nil, "")
	k2.Evidence = EvidenceKnown
	k2.References = []string{"PMID:1", " ", "PMID:3"}

	sites := Consolidate([]RawObservation{k1, k2})
	require.Len(t, sites, 1)
	assert.Equal(t, []string{"PMID:1", "PMID:2", "PMID:3"}, sites[0].References())
}

func TestInvalidObservationsIgnored(t *testing.T) {
	t.Parallel()

	c := NewConsolidator()
	bad1 := obs(0, "Phospho (S)", nil, nil, "A")
	bad2 := obs(5, "", nil, nil, "A")
	c.Add(&bad1)
	c.Add(&bad2)

	assert.Equal(t, 0, c.Len())
}

func TestMergeEqualsSequentialFold(t *testing.T) {
	t.Parallel()

	rows := []RawObservation{
		obs(10, "Oxidation (M)", fptr(0.8), fptr(5.0), "A"),
		obs(10, "Oxidation (M)", fptr(0.9), fptr(7.0), "B"),
		obs(10, "Oxidation (M)", nil, fptr(3.0), "A"),
		obs(22, "Phospho (S)", fptr(0.6), nil, ""),
		obs(22, "Phospho (S)", fptr(0.2), fptr(1.0), "B"),
	}

	sequential := NewConsolidator()
	for i := range rows {
		sequential.Add(&rows[i])
	}

	left, right := NewConsolidator(), NewConsolidator()
	for i := range rows {
		if i%2 == 0 {
			left.Add(&rows[i])
		} else {
			right.Add(&rows[i])
		}
	}
	left.Merge(right)

	want := sequential.Sites()
	got := left.Sites()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Position, got[i].Position)
		assert.Equal(t, want[i].PeptideCount, got[i].PeptideCount)
		if want[i].Probability == nil {
			assert.Nil(t, got[i].Probability)
		} else {
			require.NotNil(t, got[i].Probability)
			assert.InDelta(t, *want[i].Probability, *got[i].Probability, 1e-9)
		}
		require.Len(t, got[i].Conditions, len(want[i].Conditions))
		for label, cs := range want[i].Conditions {
			require.Contains(t, got[i].Conditions, label)
			assert.Equal(t, cs.PeptideCount, got[i].Conditions[label].PeptideCount)
			assert.Equal(t, cs.QuantityCount, got[i].Conditions[label].QuantityCount)
			assert.InDelta(t, cs.QuantitySum, got[i].Conditions[label].QuantitySum, 1e-9)
		}
	}
}

func TestSitesOrderedDeterministically(t *testing.T) {
	t.Parallel()

	known := obs(10, "Phospho (S)", nil, nil, "")
	known.Evidence = EvidenceKnown

	sites := Consolidate([]RawObservation{
		obs(22, "Phospho (S)", nil, nil, "A"),
		known,
		obs(10, "Phospho (S)", nil, nil, "A"),
		obs(10, "Acetyl (K)", nil, nil, "A"),
	})

	require.Len(t, sites, 4)
	assert.Equal(t, 10, sites[0].Position)
	assert.Equal(t, "Acetyl (K)", sites[0].ModificationType)
	assert.Equal(t, EvidenceExperimental, sites[1].Evidence)
	assert.Equal(t, EvidenceKnown, sites[2].Evidence)
	assert.Equal(t, 22, sites[3].Position)
}
