package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	t.Parallel()

	err := Newf("sequence fetch failed for %s", "P04637").
		Category(CategoryNetwork).
		Component("uniprot").
		Context("accession", "P04637").
		Build()

	assert.Equal(t, "sequence fetch failed for P04637", err.Error())
	assert.Equal(t, CategoryNetwork, err.Category)
	assert.Equal(t, "uniprot", err.GetComponent())
	assert.Equal(t, "P04637", err.GetContext()["accession"])
	assert.False(t, err.Timestamp.IsZero())
}

func TestWrapPreservesCategory(t *testing.T) {
	t.Parallel()

	inner := Newf("row rejected").Category(CategoryValidation).Component("parser").Build()
	outer := Wrap(inner).Context("row", 7).Build()

	assert.Equal(t, CategoryValidation, outer.Category)
	assert.Equal(t, "parser", outer.GetComponent())
	assert.True(t, IsCategory(outer, CategoryValidation))
}

func TestIsMatchesByCategory(t *testing.T) {
	t.Parallel()

	a := Newf("protein not found").Category(CategoryNotFound).Build()
	b := Newf("session not found").Category(CategoryNotFound).Build()

	assert.True(t, a.Is(b))
	assert.True(t, IsNotFound(a))
	assert.False(t, IsNotFound(Newf("boom").Category(CategoryDatabase).Build()))
}

func TestUnwrapChain(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("underlying")
	wrapped := New(fmt.Errorf("context: %w", sentinel)).Category(CategoryProcessing).Build()

	require.ErrorIs(t, wrapped, sentinel)
}

func TestGetContextReturnsCopy(t *testing.T) {
	t.Parallel()

	err := Newf("x").Context("k", "v").Build()
	ctx := err.GetContext()
	ctx["k"] = "mutated"

	assert.Equal(t, "v", err.GetContext()["k"])
}
