package ctemodel

import (
	"fmt"
	"math"
)

// Log-charge clip range and band boundaries for selecting leak columns.
// The exact boundary behavior is calibration-critical; it is locked by tests
// against hand-derived values rather than re-derived from the physics.
const (
	logChargeMin = 1.0
	logChargeMax = 4.0
)

// TrapTrack holds the per-trap release tables shared read-only across all
// quadrants of an exposure. Leak[t][q] is the probability that trap q+1
// releases its electron t+1 pixels downstream, normalized so each column sums
// to 1. Open is the cumulative form of Leak down the offset axis.
type TrapTrack struct {
	Leak [][]float64
	Open [][]float64
	QMax int
}

// BuildTrapTrack combines the dense leak profile with the fill curve's
// trap-to-level mapping. For each trap column the clipped log-charge
// coordinate picks one of three charge bands (boundaries at 2.0 and 3.0) and
// interpolates between the two corresponding leak-profile columns.
func BuildTrapTrack(profile *LeakProfile, curve *FillCurve) (*TrapTrack, error) {
	qmax := curve.QMax
	track := &TrapTrack{
		Leak: makeTable(MaxOffset, qmax),
		Open: makeTable(MaxOffset, qmax),
		QMax: qmax,
	}

	for q := 0; q < qmax; q++ {
		// Unset inverse entries are 0; log10 then clips them to the
		// bottom of the range, matching the tolerance the kernel needs.
		lp := math.Log10(curve.LevelOfTrap[q])
		if lp < logChargeMin || math.IsNaN(lp) {
			lp = logChargeMin
		} else if lp > logChargeMax {
			lp = logChargeMax
		}

		k := 1
		if lp < 2 {
			k = 0
		} else if lp >= 3 {
			k = 2
		}
		w := lp - float64(k+1)

		sum := 0.0
		for t := 0; t < MaxOffset; t++ {
			v := profile.Rows[t][k] + w*(profile.Rows[t][k+1]-profile.Rows[t][k])
			track.Leak[t][q] = v
			sum += v
		}
		if sum <= 0 {
			return nil, fmt.Errorf("%w: trap %d (level %.0f) sums to %g",
				ErrDegenerateColumn, q+1, curve.LevelOfTrap[q], sum)
		}

		run := 0.0
		for t := 0; t < MaxOffset; t++ {
			track.Leak[t][q] /= sum
			run += track.Leak[t][q]
			track.Open[t][q] = run
		}
	}
	return track, nil
}

func makeTable(rows, cols int) [][]float64 {
	table := make([][]float64, rows)
	for i := range table {
		table[i] = make([]float64, cols)
	}
	return table
}
