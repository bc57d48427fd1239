package ptm

import (
	"fmt"

	"github.com/ptmscope/ptmscope/internal/errors"
)

const (
	// DefaultWindowRadius is the number of flanking residues shown on each
	// side of a modification site.
	DefaultWindowRadius = 7

	// MaxWindowRadius bounds the configurable window radius.
	MaxWindowRadius = 25

	// WindowUnavailable is the display value when the protein sequence has
	// not been fetched yet.
	WindowUnavailable = "sequence unavailable"
)

// ErrPositionOutOfRange reports a site position outside the current sequence
// bounds. It is a per-lookup condition, not a crash.
var ErrPositionOutOfRange = errors.NewStd("site position out of sequence range")

// SequenceWindow derives the local context around a 1-based site position:
// up to radius residues of left flank, the site residue in brackets, and up
// to radius residues of right flank. An empty sequence returns an empty
// window with no error; the sequence may simply not be fetched yet. The
// window is always re-derived on demand and never persisted.
func SequenceWindow(sequence string, position, radius int) (string, error) {
	if sequence == "" {
		return "", nil
	}
	if radius < 1 {
		radius = DefaultWindowRadius
	} else if radius > MaxWindowRadius {
		radius = MaxWindowRadius
	}

	if position < 1 || position > len(sequence) {
		return "", errors.New(fmt.Errorf("%w: position %d, sequence length %d",
			ErrPositionOutOfRange, position, len(sequence))).
			Category(errors.CategoryValidation).
			Component("ptm").
			Context("position", position).
			Context("sequence_length", len(sequence)).
			Build()
	}

	idx := position - 1
	left := idx - radius
	if left < 0 {
		left = 0
	}
	right := idx + 1 + radius
	if right > len(sequence) {
		right = len(sequence)
	}

	return sequence[left:idx] + "[" + string(sequence[idx]) + "]" + sequence[idx+1:right], nil
}

// FormatWindow renders a computed window for display, substituting the
// unavailable marker when the sequence is missing.
func FormatWindow(window string) string {
	if window == "" {
		return WindowUnavailable
	}
	return window
}
