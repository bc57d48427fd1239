// Package parser turns raw tab-separated proteomics result files into typed
// PTM observation records. It validates the header before touching any row
// and accumulates per-row validation errors instead of aborting the batch.
package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ptmscope/ptmscope/internal/errors"
	"github.com/ptmscope/ptmscope/internal/ptm"
)

// Required column names. Matching is case-insensitive after trimming.
const (
	ColProteinID         = "ProteinId"
	ColSiteLocation      = "SiteLocation"
	ColSiteAA            = "SiteAA"
	ColModificationTitle = "ModificationTitle"
)

// Optional column names.
const (
	ColSiteProbability = "SiteProbability"
	ColQuantity        = "Quantity"
	ColFlankingRegion  = "FlankingRegion"
	ColMultiplicity    = "Multiplicity"
	ColFileName        = "FileName"
	ColCondition       = "Condition"
)

var requiredColumns = []string{ColProteinID, ColSiteLocation, ColSiteAA, ColModificationTitle}

// MissingColumnsError reports required headers absent from the input. It is
// a structural failure: no row is processed when it occurs.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// RowError records a single malformed row that was skipped.
type RowError struct {
	Row     int    `json:"row"` // 1-based data row index, header excluded
	Message string `json:"error"`
}

// Result holds the validated observations and the rows that were rejected.
type Result struct {
	Observations []ptm.RawObservation
	RowErrors    []RowError
}

// Parse reads tab-separated text with a header row and returns typed
// observations. A missing required column fails the whole parse before any
// row is consumed; a malformed row is recorded in RowErrors and skipped.
func Parse(r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New(&MissingColumnsError{Columns: requiredColumns}).
			Category(errors.CategoryFileParsing).
			Component("parser").
			Context("reason", "empty file").
			Build()
	}
	if err != nil {
		return nil, errors.Newf("reading header row: %w", err).
			Category(errors.CategoryFileParsing).
			Component("parser").
			Build()
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[strings.ToLower(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, errors.New(&MissingColumnsError{Columns: missing}).
			Category(errors.CategoryFileParsing).
			Component("parser").
			Context("missing_columns", strings.Join(missing, ", ")).
			Build()
	}

	result := &Result{}
	row := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			result.RowErrors = append(result.RowErrors, RowError{
				Row:     row,
				Message: fmt.Sprintf("unreadable row: %v", err),
			})
			continue
		}
		if isBlank(record) {
			row--
			continue
		}

		obs, rowErr := parseRow(record, columns, row)
		if rowErr != nil {
			result.RowErrors = append(result.RowErrors, *rowErr)
			continue
		}
		result.Observations = append(result.Observations, *obs)
	}

	return result, nil
}

// parseRow validates one data row and converts it into a RawObservation.
func parseRow(record []string, columns map[string]int, row int) (*ptm.RawObservation, *RowError) {
	accession := field(record, columns, ColProteinID)
	if accession == "" {
		return nil, &RowError{Row: row, Message: "missing " + ColProteinID}
	}

	locStr := field(record, columns, ColSiteLocation)
	if locStr == "" {
		return nil, &RowError{Row: row, Message: "missing " + ColSiteLocation}
	}
	position, err := strconv.Atoi(locStr)
	if err != nil || position < 1 {
		return nil, &RowError{Row: row, Message: fmt.Sprintf("invalid %s %q", ColSiteLocation, locStr)}
	}

	modification := field(record, columns, ColModificationTitle)
	if modification == "" {
		return nil, &RowError{Row: row, Message: "missing " + ColModificationTitle}
	}

	aminoAcid := field(record, columns, ColSiteAA)
	if len(aminoAcid) > 1 {
		return nil, &RowError{Row: row, Message: fmt.Sprintf("invalid %s %q, expected a single residue letter", ColSiteAA, aminoAcid)}
	}

	obs := &ptm.RawObservation{
		Accession:        accession,
		Position:         position,
		AminoAcid:        strings.ToUpper(aminoAcid),
		ModificationType: modification,
		Evidence:         ptm.EvidenceExperimental,
		FlankingRegion:   field(record, columns, ColFlankingRegion),
		Multiplicity:     1,
		ExperimentName:   field(record, columns, ColFileName),
		Condition:        field(record, columns, ColCondition),
	}

	if probStr := field(record, columns, ColSiteProbability); probStr != "" {
		prob, err := strconv.ParseFloat(probStr, 64)
		if err != nil || math.IsNaN(prob) || prob < 0 || prob > 1 {
			return nil, &RowError{Row: row, Message: fmt.Sprintf("invalid %s %q", ColSiteProbability, probStr)}
		}
		obs.Probability = &prob
	}

	if qtyStr := field(record, columns, ColQuantity); qtyStr != "" {
		qty, err := strconv.ParseFloat(qtyStr, 64)
		if err != nil {
			return nil, &RowError{Row: row, Message: fmt.Sprintf("invalid %s %q", ColQuantity, qtyStr)}
		}
		// Non-finite values parse but carry no quantitative evidence.
		if !math.IsNaN(qty) && !math.IsInf(qty, 0) {
			obs.Quantity = &qty
		}
	}

	if multStr := field(record, columns, ColMultiplicity); multStr != "" {
		mult, err := strconv.Atoi(multStr)
		if err != nil || mult < 1 {
			return nil, &RowError{Row: row, Message: fmt.Sprintf("invalid %s %q", ColMultiplicity, multStr)}
		}
		obs.Multiplicity = mult
	}

	return obs, nil
}

// field returns the trimmed cell value for a named column, or empty when the
// column is absent or the row is short.
func field(record []string, columns map[string]int, name string) string {
	idx, ok := columns[strings.ToLower(name)]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
