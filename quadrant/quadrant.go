// Package quadrant maps between full-exposure planes and per-amp working
// frames. Each amp reads out one quadrant of the sensor; for the correction
// the quadrant is copied out with its readout corner flipped to the
// bottom-left, mutated, and written back. Frames are exclusively owned by the
// iteration processing them.
package quadrant

import "fmt"

// Placement locates an amp's quadrant: which plane it lives on, which half of
// that plane, and the flips that put the readout corner at the bottom-left.
type Placement struct {
	Plane int
	Right bool
	FlipV bool
	FlipH bool
}

// The reference detector reads through four amps on two chips. The first
// science plane in the file carries amps C and D with the readout corners on
// its bottom row; the second carries A and B reading out through its top row.
var placements = map[string]Placement{
	"A": {Plane: 1, Right: false, FlipV: true, FlipH: false},
	"B": {Plane: 1, Right: true, FlipV: true, FlipH: true},
	"C": {Plane: 0, Right: false, FlipV: false, FlipH: false},
	"D": {Plane: 0, Right: true, FlipV: false, FlipH: true},
}

// PlacementFor returns the placement for an amp name.
func PlacementFor(amp string) (Placement, bool) {
	p, ok := placements[amp]
	return p, ok
}

// Frame is one amp's working view: science pixels in readout orientation,
// the matching error plane, and the amp's gain.
type Frame struct {
	Amp  string
	Gain float64
	Sci  [][]float64
	Err  [][]float64
}

// Extract copies an amp's quadrant out of full science and error planes.
// The plane is split down the middle; odd widths cannot be split into amp
// halves and are rejected.
func Extract(sciPlane, errPlane [][]float64, amp string, gain float64) (*Frame, error) {
	p, ok := placements[amp]
	if !ok {
		return nil, fmt.Errorf("quadrant: unknown amp %q", amp)
	}
	rows := len(sciPlane)
	if rows == 0 || len(sciPlane[0])%2 != 0 {
		return nil, fmt.Errorf("quadrant: amp %s: plane %dx%d cannot be halved",
			amp, rows, planeCols(sciPlane))
	}
	if len(errPlane) != rows || len(errPlane[0]) != len(sciPlane[0]) {
		return nil, fmt.Errorf("quadrant: amp %s: error plane shape mismatch", amp)
	}
	return &Frame{
		Amp:  amp,
		Gain: gain,
		Sci:  extractHalf(sciPlane, p),
		Err:  extractHalf(errPlane, p),
	}, nil
}

// WriteBack copies the frame's data into its quadrant of the full planes,
// undoing the readout flips.
func (f *Frame) WriteBack(sciPlane, errPlane [][]float64) error {
	p, ok := placements[f.Amp]
	if !ok {
		return fmt.Errorf("quadrant: unknown amp %q", f.Amp)
	}
	writeHalf(sciPlane, f.Sci, p)
	writeHalf(errPlane, f.Err, p)
	return nil
}

func planeCols(plane [][]float64) int {
	if len(plane) == 0 {
		return 0
	}
	return len(plane[0])
}

func extractHalf(plane [][]float64, p Placement) [][]float64 {
	rows := len(plane)
	half := len(plane[0]) / 2
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		src := r
		if p.FlipV {
			src = rows - 1 - r
		}
		out[r] = make([]float64, half)
		for c := 0; c < half; c++ {
			sc := c
			if p.FlipH {
				sc = half - 1 - c
			}
			if p.Right {
				sc += half
			}
			out[r][c] = plane[src][sc]
		}
	}
	return out
}

func writeHalf(plane [][]float64, quad [][]float64, p Placement) {
	rows := len(plane)
	half := len(plane[0]) / 2
	for r := 0; r < rows; r++ {
		src := r
		if p.FlipV {
			src = rows - 1 - r
		}
		for c := 0; c < half; c++ {
			sc := c
			if p.FlipH {
				sc = half - 1 - c
			}
			if p.Right {
				sc += half
			}
			plane[src][sc] = quad[r][c]
		}
	}
}
