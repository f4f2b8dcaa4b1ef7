// Package readnoise separates an observed per-pixel electron count into a
// smooth signal estimate and a noise residual so the deterministic CTE
// correction does not amplify readout noise. Whatever model runs, the split
// always satisfies signal + noise == original exactly: one side is derived by
// subtraction from the other, never computed independently.
package readnoise

import (
	"fmt"
	"math"
)

// Model selects the separation algorithm.
type Model string

const (
	// ModelNone passes the input through: signal = input, noise = 0.
	ModelNone Model = "none"

	// ModelVerticalIterative removes up to one electron per iteration by
	// comparing each pixel against the mean of its vertical neighbors.
	// This is the default model.
	ModelVerticalIterative Model = "vertical-iterative"

	// ModelReadnoiseThreshold smooths with a 3-tap vertical average and
	// keeps only residuals consistent with the configured read noise.
	ModelReadnoiseThreshold Model = "readnoise-threshold"
)

// Acceptance band for the vertical-iterative model, in electrons. Pixels
// outside the band carry more Poisson noise than read noise and are left
// alone, together with their vertical neighbors.
const (
	defaultAcceptLo = -20.0
	defaultAcceptHi = 100.0
)

// Separator applies one of the separation models to 2-D electron arrays.
type Separator struct {
	model      Model
	iterations int
	readNoise  float64

	// AcceptLo and AcceptHi bound the vertical-iterative acceptance band.
	AcceptLo, AcceptHi float64
}

// NewSeparator validates the model selection. iterations applies to the
// vertical-iterative model, readNoise to the readnoise-threshold model.
func NewSeparator(model Model, iterations int, readNoise float64) (*Separator, error) {
	switch model {
	case ModelNone, ModelVerticalIterative, ModelReadnoiseThreshold:
	default:
		return nil, fmt.Errorf("readnoise: unknown model %q", model)
	}
	if iterations < 0 {
		return nil, fmt.Errorf("readnoise: negative iteration count %d", iterations)
	}
	if model == ModelReadnoiseThreshold && readNoise <= 0 {
		return nil, fmt.Errorf("readnoise: model %q needs a positive read noise, got %g", model, readNoise)
	}
	return &Separator{
		model:      model,
		iterations: iterations,
		readNoise:  readNoise,
		AcceptLo:   defaultAcceptLo,
		AcceptHi:   defaultAcceptHi,
	}, nil
}

// Model returns the configured model.
func (s *Separator) Model() Model { return s.model }

// Split decomposes data into signal and noise arrays of the same shape.
// data is not modified.
func (s *Separator) Split(data [][]float64) (signal, noise [][]float64) {
	switch s.model {
	case ModelVerticalIterative:
		return s.splitVertical(data)
	case ModelReadnoiseThreshold:
		return s.splitThreshold(data)
	default:
		return copyPlane(data), zeroPlane(data)
	}
}

// splitVertical iterates a clipped relaxation toward the vertical neighbor
// mean. Each iteration moves at most one electron per pixel from signal to
// noise, so iteration count N bounds the removable noise at N electrons.
func (s *Separator) splitVertical(data [][]float64) ([][]float64, [][]float64) {
	rows := len(data)
	signal := copyPlane(data)
	noise := zeroPlane(data)
	if rows < 3 || s.iterations == 0 {
		return signal, noise
	}
	cols := len(data[0])

	// Boundary rows are never corrected; out-of-band pixels and their
	// vertical neighbors are excluded so they cannot corrupt the averaging
	// basis. The out-of-band scan looks at the original data only.
	correct := make([][]bool, rows)
	for r := range correct {
		correct[r] = make([]bool, cols)
		if r > 0 && r < rows-1 {
			for c := range correct[r] {
				correct[r][c] = true
			}
		}
	}
	for r := 1; r < rows-1; r++ {
		for c := 0; c < cols; c++ {
			if data[r][c] < s.AcceptLo || data[r][c] > s.AcceptHi {
				correct[r][c] = false
				correct[r-1][c] = false
				correct[r+1][c] = false
			}
		}
	}

	// Deltas are computed for the whole frame before any subtraction so
	// every pixel in one iteration sees the same neighbor state.
	delta := make([][]float64, rows)
	for r := range delta {
		delta[r] = make([]float64, cols)
	}
	for it := 0; it < s.iterations; it++ {
		for r := 1; r < rows-1; r++ {
			for c := 0; c < cols; c++ {
				if !correct[r][c] {
					delta[r][c] = 0
					continue
				}
				mean := 0.5 * (signal[r-1][c] + signal[r+1][c])
				d := signal[r][c] - mean
				if d > 1 {
					d = 1
				} else if d < -1 {
					d = -1
				}
				delta[r][c] = d
			}
		}
		for r := 1; r < rows-1; r++ {
			for c := 0; c < cols; c++ {
				signal[r][c] -= delta[r][c]
			}
		}
	}

	for r := range data {
		for c := range data[r] {
			noise[r][c] = data[r][c] - signal[r][c]
		}
	}
	return signal, noise
}

// splitThreshold smooths with a 3-tap vertical running average, excluding one
// row on the readout side and four rows on the far side, then keeps residuals
// below twice the read noise, zeroes them above four times, and tapers
// linearly in between.
func (s *Separator) splitThreshold(data [][]float64) ([][]float64, [][]float64) {
	rows := len(data)
	signal := copyPlane(data)
	noise := zeroPlane(data)

	lo := 2.0 * s.readNoise
	hi := 2.0 * lo

	y1, y2 := 1, rows-4
	if y2 <= y1 {
		return signal, noise
	}

	smooth := copyPlane(data)
	for r := y1; r < y2; r++ {
		for c := range data[r] {
			smooth[r][c] = 0.333*data[r-1][c] + 0.334*data[r][c] + 0.333*data[r+1][c]
		}
	}

	for r := range data {
		for c := range data[r] {
			n := data[r][c] - smooth[r][c]
			a := math.Abs(n)
			switch {
			case a > hi:
				n = 0
			case a > lo:
				n = (hi - a) * sign(n)
			}
			signal[r][c] = data[r][c] - n
			// Re-derive so noise is exactly data minus signal, the
			// same identity every model guarantees.
			noise[r][c] = data[r][c] - signal[r][c]
		}
	}
	return signal, noise
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func copyPlane(src [][]float64) [][]float64 {
	out := make([][]float64, len(src))
	for r := range src {
		out[r] = append([]float64(nil), src[r]...)
	}
	return out
}

func zeroPlane(src [][]float64) [][]float64 {
	out := make([][]float64, len(src))
	for r := range src {
		out[r] = make([]float64, len(src[r]))
	}
	return out
}
