package ctemodel

import (
	"errors"
	"math"
	"testing"
)

// Eleven nodes cover the full log coordinate range 1..10.4 of levels 1..49999.
func flatFillNodes(v float64) []float64 {
	nodes := make([]float64, 11)
	for i := range nodes {
		nodes[i] = v
	}
	return nodes
}

func TestFillCurveFlatNodes(t *testing.T) {
	v := 0.002
	curve, err := BuildFillCurve(flatFillNodes(v), 1.0)
	if err != nil {
		t.Fatalf("BuildFillCurve: %v", err)
	}
	for p, f := range curve.Fraction {
		if math.Abs(f-v) > 1e-12 {
			t.Fatalf("level %d: fraction %v, want %v", p+1, f, v)
		}
	}
	want := int(v * MaxLevel)
	if curve.QMax != want {
		t.Fatalf("QMax = %d, want %d", curve.QMax, want)
	}
}

func TestFillCurveCumulativeInvariants(t *testing.T) {
	nodes := []float64{0.0, 0.001, 0.003, 0.004, 0.004, 0.003, 0.002, 0.002, 0.001, 0.001, 0.001}
	curve, err := BuildFillCurve(nodes, 0.7)
	if err != nil {
		t.Fatalf("BuildFillCurve: %v", err)
	}
	prev := 0
	for p, q := range curve.TrapsAtLevel {
		if q < 1 {
			t.Fatalf("level %d: trap count %d below 1", p+1, q)
		}
		if q < prev {
			t.Fatalf("level %d: trap count %d decreased from %d", p+1, q, prev)
		}
		prev = q
	}
	if got := curve.TrapsAtLevel[MaxLevel-1]; got != curve.QMax {
		t.Fatalf("final trap count %d != QMax %d", got, curve.QMax)
	}
	if len(curve.LevelOfTrap) != curve.QMax {
		t.Fatalf("LevelOfTrap length %d, want %d", len(curve.LevelOfTrap), curve.QMax)
	}
}

// Level 10 sits exactly at rl = 1 + 2*log10(10) = 3.0, so it must read node 3
// with zero interpolation weight toward node 4. An off-by-one in the node
// coordinate shifts this onto the wrong bracket.
func TestFillCurveNodeBoundaryIndexing(t *testing.T) {
	nodes := flatFillNodes(0)
	nodes[2] = 1.0 // value at node 3 (0-based index 2)
	nodes[3] = 5.0
	curve, err := BuildFillCurve(nodes, 1.0)
	if err != nil {
		t.Fatalf("BuildFillCurve: %v", err)
	}
	// Index 9 is charge level 10.
	if got := curve.Fraction[9]; math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("level 10: fraction %v, want exactly node 3 value 1.0", got)
	}
	// Level 1: rl = 1.0, entirely on node 1.
	if got := curve.Fraction[0]; got != 0 {
		t.Fatalf("level 1: fraction %v, want node 1 value 0", got)
	}
}

func TestFillCurveScalarScaling(t *testing.T) {
	one, err := BuildFillCurve(flatFillNodes(0.004), 1.0)
	if err != nil {
		t.Fatalf("BuildFillCurve: %v", err)
	}
	half, err := BuildFillCurve(flatFillNodes(0.004), 0.5)
	if err != nil {
		t.Fatalf("BuildFillCurve: %v", err)
	}
	if one.QMax != 2*half.QMax && one.QMax != 2*half.QMax+1 {
		t.Fatalf("QMax did not scale with time scalar: %d vs %d", one.QMax, half.QMax)
	}
	for p := range half.Fraction {
		if math.Abs(half.Fraction[p]*2-one.Fraction[p]) > 1e-12 {
			t.Fatalf("level %d: fraction did not scale linearly", p+1)
		}
	}
}

// Epochs before the first calibration anchor scale the curve by a negative
// factor. That is a legal extrapolation and must produce empty tables, not a
// negative capacity.
func TestFillCurveNonPositiveScalar(t *testing.T) {
	for _, scalar := range []float64{-0.1, 0.0} {
		curve, err := BuildFillCurve(flatFillNodes(0.002), scalar)
		if err != nil {
			t.Fatalf("scalar %v: BuildFillCurve: %v", scalar, err)
		}
		if curve.QMax != 0 {
			t.Fatalf("scalar %v: QMax = %d, want 0", scalar, curve.QMax)
		}
		if len(curve.LevelOfTrap) != 0 {
			t.Fatalf("scalar %v: LevelOfTrap length %d, want 0", scalar, len(curve.LevelOfTrap))
		}
		for p, q := range curve.TrapsAtLevel {
			if q != 1 {
				t.Fatalf("scalar %v: level %d: trap count %d, want clip to 1", scalar, p+1, q)
			}
		}
	}
}

func TestFillCurveDomainError(t *testing.T) {
	// Levels above 10^4.5 need node 11; nine nodes cannot cover the domain.
	short := make([]float64, 9)
	if _, err := BuildFillCurve(short, 1.0); !errors.Is(err, ErrDomain) {
		t.Fatalf("got %v, want ErrDomain", err)
	}
}

func TestFillCurveInverseMapping(t *testing.T) {
	curve, err := BuildFillCurve(flatFillNodes(0.002), 1.0)
	if err != nil {
		t.Fatalf("BuildFillCurve: %v", err)
	}
	for q := 1; q <= curve.QMax; q++ {
		level := curve.LevelOfTrap[q-1]
		if level == 0 {
			continue // unset entries are legal
		}
		p := int(level) - 1
		if curve.TrapsAtLevel[p] != q {
			t.Fatalf("trap %d: level %v maps back to count %d", q, level, curve.TrapsAtLevel[p])
		}
		// Last level wins: the next level must exceed q.
		if p+1 < MaxLevel && curve.TrapsAtLevel[p+1] == q {
			t.Fatalf("trap %d: level %v is not the last level at that count", q, level)
		}
	}
}
