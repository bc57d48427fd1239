package ptm

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/ptmscope/ptmscope/internal/errors"
)

// csvHeader is the flat export layout, one row per consolidated site.
var csvHeader = []string{
	"Position",
	"AminoAcid",
	"ModificationType",
	"EvidenceClass",
	"Conditions",
	"PeptideCount",
	"Probability",
	"PerConditionQuantities",
	"SequenceWindow",
	"References",
}

// WriteCSV exports consolidated sites as CSV. The sequence may be empty when
// enrichment has not run; windows then render as unavailable. A site whose
// position falls outside the sequence exports the out-of-range marker rather
// than failing the whole export.
func WriteCSV(w io.Writer, sites []*ConsolidatedSite, sequence string, radius int) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return errors.New(err).Category(errors.CategoryFileIO).Component("ptm").Build()
	}

	for _, site := range sites {
		window, err := SequenceWindow(sequence, site.Position, radius)
		switch {
		case err != nil:
			window = "position out of range"
		case window == "":
			window = WindowUnavailable
		}

		record := []string{
			fmt.Sprintf("%d", site.Position),
			site.AminoAcid,
			site.ModificationType,
			string(site.Evidence),
			strings.Join(site.ConditionLabels(), "; "),
			fmt.Sprintf("%d", site.PeptideCount),
			FormatProbability(site.Probability),
			formatConditionQuantities(site),
			window,
			strings.Join(site.References(), "; "),
		}
		if err := cw.Write(record); err != nil {
			return errors.New(err).Category(errors.CategoryFileIO).Component("ptm").Build()
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.New(err).Category(errors.CategoryFileIO).Component("ptm").Build()
	}
	return nil
}

// FormatProbability renders a site probability as a percentage string, or
// empty when no contributing observation carried one.
func FormatProbability(p *float64) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%.1f%%", *p*100)
}

// formatConditionQuantities joins per-condition average quantities in label
// order. Conditions without quantitative evidence render as "no data"; the
// average is never computed from a zero count.
func formatConditionQuantities(site *ConsolidatedSite) string {
	parts := make([]string, 0, len(site.Conditions))
	for _, label := range site.ConditionLabels() {
		avg, ok := site.Conditions[label].AverageQuantity()
		if !ok {
			parts = append(parts, label+": no data")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %.2f", label, avg))
	}
	return strings.Join(parts, "; ")
}
