// Package ctemodel builds the dense charge-trap tables used by the pixel-based
// CTE correction: the release-fraction profile (how trapped charge leaks back
// out over downstream pixels), the trap-fill curve (how many traps a given
// charge level fills), and the combined per-trap track tables handed to the
// correction kernel.
package ctemodel

import "errors"

const (
	// MaxOffset is the longest charge tail tracked, in downstream pixels.
	MaxOffset = 100

	// MaxLevel is the dense charge-level domain of the fill curve.
	MaxLevel = 49999

	// NodeColumns is the number of charge-node columns in the leak
	// calibration (one per calibrated charge level).
	NodeColumns = 4
)

var (
	// ErrMalformedNodes reports leak calibration nodes that are too few or
	// out of order.
	ErrMalformedNodes = errors.New("ctemodel: malformed calibration nodes")

	// ErrDomain reports a charge level whose log-node coordinate falls
	// outside the fill calibration node array.
	ErrDomain = errors.New("ctemodel: charge level outside calibration node domain")

	// ErrDegenerateColumn reports a trap column whose release profile sums
	// to zero or less; every trapped electron must eventually be released,
	// so a non-positive sum indicates broken calibration data.
	ErrDegenerateColumn = errors.New("ctemodel: degenerate release column")
)

// LeakNode is one sparse calibration row: release fractions at a given
// downstream pixel offset, one column per calibrated charge node.
type LeakNode struct {
	Offset    int
	Fractions [NodeColumns]float64
}
