package ctemodel

import (
	"fmt"
	"math"
)

// FillCurve is the dense trap-fill model over charge levels 1..MaxLevel,
// together with the two mappings between cumulative charge and quantized trap
// count that the track tables and the correction kernel consume.
type FillCurve struct {
	// Fraction holds the interpolated fill fraction per charge level,
	// already scaled by the exposure's time scalar.
	Fraction []float64

	// TrapsAtLevel maps each charge level (index p, level p+1) to the
	// cumulative trap count reached by that level. Non-decreasing, >= 1.
	TrapsAtLevel []int

	// LevelOfTrap is the inverse mapping: for trap count q (index q-1), the
	// last charge level whose cumulative count first equals q. Entries left
	// at 0 are unset; lookups of unset trap counts are a caller error and
	// consumers must clip accordingly.
	LevelOfTrap []float64

	// QMax is the total trap capacity, the floor of the curve's integral.
	QMax int
}

// BuildFillCurve expands sparse fill-fraction nodes into the dense curve.
// Each level p (0-based) sits at the log-node coordinate
//
//	rl = 1 + 2*log10(p+1)
//
// and is interpolated linearly between the two calibration nodes bracketing
// floor(rl). The result is scaled by the time scalar before accumulation, so
// the derived trap capacity tracks the exposure epoch.
func BuildFillCurve(fillNodes []float64, timeScalar float64) (*FillCurve, error) {
	curve := &FillCurve{
		Fraction:     make([]float64, MaxLevel),
		TrapsAtLevel: make([]int, MaxLevel),
	}

	sum := 0.0
	for p := 0; p < MaxLevel; p++ {
		rl := 1.0 + 2.0*math.Log10(float64(p+1))
		hi := int(rl)
		lo := hi - 1
		if lo < 0 || hi >= len(fillNodes) {
			return nil, fmt.Errorf("%w: level %d needs nodes %d..%d of %d",
				ErrDomain, p+1, lo+1, hi+1, len(fillNodes))
		}
		frac := rl - float64(hi)
		f := (fillNodes[lo] + frac*(fillNodes[hi]-fillNodes[lo])) * timeScalar
		curve.Fraction[p] = f

		sum += f
		q := int(sum)
		if q < 1 {
			q = 1
		}
		curve.TrapsAtLevel[p] = q
	}

	// Extrapolated epochs before the first calibration anchor can drive the
	// integral to zero or below; that is a valid no-traps-yet model, not an
	// error, so the capacity clamps to zero and the tables come out empty.
	curve.QMax = int(sum)
	if curve.QMax < 0 {
		curve.QMax = 0
	}
	curve.LevelOfTrap = make([]float64, curve.QMax)
	for p, q := range curve.TrapsAtLevel {
		if q <= curve.QMax {
			// Last level wins when several levels share a count.
			curve.LevelOfTrap[q-1] = float64(p + 1)
		}
	}
	return curve, nil
}
