package ctemodel

import "fmt"

// LeakProfile is the dense release-fraction table: rows are downstream pixel
// offsets 1..MaxOffset, columns mirror the calibration charge nodes.
type LeakProfile struct {
	Rows [MaxOffset][NodeColumns]float64
}

// BuildLeakProfile expands sparse leak nodes into a dense per-offset table.
// Intermediate offsets are interpolated linearly per column; offsets at and
// beyond the last node carry the last node's values unchanged, so the value at
// every node offset equals the calibration input exactly.
func BuildLeakProfile(nodes []LeakNode) (*LeakProfile, error) {
	if len(nodes) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 leak nodes, got %d", ErrMalformedNodes, len(nodes))
	}
	if nodes[0].Offset != 1 {
		return nil, fmt.Errorf("%w: first offset must be 1, got %d", ErrMalformedNodes, nodes[0].Offset)
	}
	for i := 1; i < len(nodes); i++ {
		if nodes[i].Offset <= nodes[i-1].Offset {
			return nil, fmt.Errorf("%w: offsets not strictly increasing at node %d", ErrMalformedNodes, i)
		}
	}
	last := nodes[len(nodes)-1]
	if last.Offset > MaxOffset {
		return nil, fmt.Errorf("%w: last offset %d exceeds %d", ErrMalformedNodes, last.Offset, MaxOffset)
	}

	profile := &LeakProfile{}
	for i := 0; i < len(nodes)-1; i++ {
		lo, hi := nodes[i], nodes[i+1]
		span := float64(hi.Offset - lo.Offset)
		for off := lo.Offset; off < hi.Offset; off++ {
			w := float64(off-lo.Offset) / span
			for k := 0; k < NodeColumns; k++ {
				profile.Rows[off-1][k] = lo.Fractions[k] + w*(hi.Fractions[k]-lo.Fractions[k])
			}
		}
	}
	for off := last.Offset; off <= MaxOffset; off++ {
		profile.Rows[off-1] = last.Fractions
	}
	return profile, nil
}
