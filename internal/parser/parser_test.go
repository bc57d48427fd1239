package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptmscope/ptmscope/internal/errors"
	"github.com/ptmscope/ptmscope/internal/ptm"
)

const validHeader = "ProteinId\tSiteLocation\tSiteAA\tModificationTitle\tSiteProbability\tQuantity\tMultiplicity\tFileName\tCondition"

func TestParseValidFile(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		validHeader,
		"P04637\t15\tS\tPhospho (S)\t0.98\t12345.6\t1\texp01.raw\tControl",
		"P04637\t20\tT\tPhospho (T)\t\t\t\t\t",
	}, "\n")

	result, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result.Observations, 2)
	assert.Empty(t, result.RowErrors)

	first := result.Observations[0]
	assert.Equal(t, "P04637", first.Accession)
	assert.Equal(t, 15, first.Position)
	assert.Equal(t, "S", first.AminoAcid)
	assert.Equal(t, "Phospho (S)", first.ModificationType)
	assert.Equal(t, ptm.EvidenceExperimental, first.Evidence)
	require.NotNil(t, first.Probability)
	assert.InDelta(t, 0.98, *first.Probability, 1e-9)
	require.NotNil(t, first.Quantity)
	assert.InDelta(t, 12345.6, *first.Quantity, 1e-9)
	assert.Equal(t, "Control", first.Condition)
	assert.Equal(t, "exp01.raw", first.ExperimentName)

	second := result.Observations[1]
	assert.Nil(t, second.Probability)
	assert.Nil(t, second.Quantity)
	assert.Equal(t, 1, second.Multiplicity)
	assert.Empty(t, second.Condition)
}

func TestParseMissingColumns(t *testing.T) {
	t.Parallel()

	input := "ProteinId\tSiteAA\nP04637\tS\n"
	result, err := Parse(strings.NewReader(input))
	require.Error(t, err)
	assert.Nil(t, result)

	var missing *MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"SiteLocation", "ModificationTitle"}, missing.Columns)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))
}

func TestParseEmptyInput(t *testing.T) {
	t.Parallel()

	_, err := Parse(strings.NewReader(""))
	require.Error(t, err)

	var missing *MissingColumnsError
	assert.ErrorAs(t, err, &missing)
}

func TestParseMalformedRowsAreSkippedNotFatal(t *testing.T) {
	t.Parallel()

	rows := []string{validHeader}
	for i := 0; i < 9; i++ {
		rows = append(rows, "P04637\t"+string(rune('1'+i))+"\tS\tPhospho (S)\t\t\t\t\t")
	}
	// Tenth row has a non-numeric position.
	rows = append(rows, "P04637\tnotanumber\tS\tPhospho (S)\t\t\t\t\t")

	result, err := Parse(strings.NewReader(strings.Join(rows, "\n")))
	require.NoError(t, err)
	assert.Len(t, result.Observations, 9)
	require.Len(t, result.RowErrors, 1)
	assert.Equal(t, 10, result.RowErrors[0].Row)
	assert.Contains(t, result.RowErrors[0].Message, "SiteLocation")
}

func TestParseRowValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		row     string
		wantMsg string
	}{
		{"missing protein id", "\t10\tS\tPhospho (S)", "ProteinId"},
		{"missing position", "P04637\t\tS\tPhospho (S)", "SiteLocation"},
		{"zero position", "P04637\t0\tS\tPhospho (S)", "SiteLocation"},
		{"missing modification", "P04637\t10\tS\t", "ModificationTitle"},
		{"multi-letter residue", "P04637\t10\tSER\tPhospho (S)", "SiteAA"},
		{"probability above one", "P04637\t10\tS\tPhospho (S)\t1.5", "SiteProbability"},
		{"bad quantity", "P04637\t10\tS\tPhospho (S)\t\tabc", "Quantity"},
		{"zero multiplicity", "P04637\t10\tS\tPhospho (S)\t\t\t0", "Multiplicity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			input := validHeader + "\n" + tt.row + "\n"
			result, err := Parse(strings.NewReader(input))
			require.NoError(t, err)
			assert.Empty(t, result.Observations)
			require.Len(t, result.RowErrors, 1)
			assert.Contains(t, result.RowErrors[0].Message, tt.wantMsg)
		})
	}
}

func TestParseSkipsEmptyLines(t *testing.T) {
	t.Parallel()

	input := validHeader + "\n\nP04637\t10\tS\tPhospho (S)\t\t\t\t\t\n\n"
	result, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, result.Observations, 1)
	assert.Empty(t, result.RowErrors)
}

func TestParseHeaderTrimAndCase(t *testing.T) {
	t.Parallel()

	input := " proteinid \tSITELOCATION\tsiteaa\tmodificationtitle\nQ9Y6K9\t42\tk\tAcetyl (K)\n"
	result, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result.Observations, 1)
	assert.Equal(t, "Q9Y6K9", result.Observations[0].Accession)
	assert.Equal(t, "K", result.Observations[0].AminoAcid, "residue letter is upper-cased")
}

func TestParseMissingSiteAAIsAccepted(t *testing.T) {
	t.Parallel()

	// SiteAA is advisory; an empty cell is allowed.
	input := validHeader + "\nP04637\t10\t\tPhospho (S)\t\t\t\t\t\n"
	result, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, result.Observations, 1)
	assert.Empty(t, result.Observations[0].AminoAcid)
}
