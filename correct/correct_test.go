package correct

import (
	"errors"
	"math"
	"testing"

	"pixcte/ctemodel"
	"pixcte/quadrant"
	"pixcte/readnoise"
)

// identityKernel returns its input unchanged with status 0.
type identityKernel struct{}

func (identityKernel) Apply(sig [][]float64, qmax int, traps []int,
	leak, open [][]float64, amp, logPath string) ([][]float64, int, error) {
	return copyPlane(sig), 0, nil
}

// shiftKernel adds a fixed amount to every pixel, in detector units.
type shiftKernel struct{ delta float64 }

func (k shiftKernel) Apply(sig [][]float64, qmax int, traps []int,
	leak, open [][]float64, amp, logPath string) ([][]float64, int, error) {
	out := copyPlane(sig)
	for r := range out {
		for c := range out[r] {
			out[r][c] += k.delta
		}
	}
	return out, 0, nil
}

// failingKernel fails for one amp and shifts the rest.
type failingKernel struct {
	failAmp string
	inner   Kernel
}

func (k failingKernel) Apply(sig [][]float64, qmax int, traps []int,
	leak, open [][]float64, amp, logPath string) ([][]float64, int, error) {
	if amp == k.failAmp {
		return nil, 5, nil
	}
	return k.inner.Apply(sig, qmax, traps, leak, open, amp, logPath)
}

func testDriver(t *testing.T, k Kernel) *Driver {
	t.Helper()
	profile, err := ctemodel.BuildLeakProfile([]ctemodel.LeakNode{
		{Offset: 1, Fractions: [ctemodel.NodeColumns]float64{0.9, 0.9, 0.9, 0.9}},
		{Offset: 10, Fractions: [ctemodel.NodeColumns]float64{0.1, 0.1, 0.1, 0.1}},
	})
	if err != nil {
		t.Fatalf("BuildLeakProfile: %v", err)
	}
	nodes := make([]float64, 11)
	for i := range nodes {
		nodes[i] = 0.002
	}
	curve, err := ctemodel.BuildFillCurve(nodes, 1.0)
	if err != nil {
		t.Fatalf("BuildFillCurve: %v", err)
	}
	track, err := ctemodel.BuildTrapTrack(profile, curve)
	if err != nil {
		t.Fatalf("BuildTrapTrack: %v", err)
	}
	sep, err := readnoise.NewSeparator(readnoise.ModelVerticalIterative, 7, 0)
	if err != nil {
		t.Fatalf("NewSeparator: %v", err)
	}
	return &Driver{
		Track:     track,
		Curve:     curve,
		Separator: sep,
		Kernel:    k,
		Logf:      t.Logf,
	}
}

func flatFrame(amp string, gain, value float64) *quadrant.Frame {
	sci := make([][]float64, 8)
	errs := make([][]float64, 8)
	for r := range sci {
		sci[r] = make([]float64, 6)
		errs[r] = make([]float64, 6)
		for c := range sci[r] {
			sci[r][c] = value
			errs[r][c] = 3.0
		}
	}
	return &quadrant.Frame{Amp: amp, Gain: gain, Sci: sci, Err: errs}
}

func TestIdentityKernelLeavesFrameUntouched(t *testing.T) {
	d := testDriver(t, identityKernel{})
	f := flatFrame("C", 1.0, 1000)

	results := d.Run([]*quadrant.Frame{f})
	if len(results) != 1 || results[0].Skipped {
		t.Fatalf("unexpected results: %+v", results)
	}
	for r := range f.Sci {
		for c := range f.Sci[r] {
			if f.Sci[r][c] != 1000 {
				t.Fatalf("pixel (%d,%d) = %v, want 1000", r, c, f.Sci[r][c])
			}
			if f.Err[r][c] != 3.0 {
				t.Fatalf("error (%d,%d) = %v, want unchanged 3.0", r, c, f.Err[r][c])
			}
		}
	}
	if results[0].MaxAbsCorrection != 0 {
		t.Fatalf("max correction %v, want 0", results[0].MaxAbsCorrection)
	}
}

func TestKernelFailureSkipsOnlyThatQuadrant(t *testing.T) {
	d := testDriver(t, failingKernel{failAmp: "B", inner: shiftKernel{delta: 2}})
	frames := []*quadrant.Frame{
		flatFrame("A", 2.0, 1000),
		flatFrame("B", 2.0, 1000),
		flatFrame("C", 2.0, 1000),
		flatFrame("D", 2.0, 1000),
	}
	results := d.Run(frames)

	for i, res := range results {
		f := frames[i]
		if f.Amp == "B" {
			if !res.Skipped || res.Status != 5 {
				t.Fatalf("amp B: result %+v, want skipped with status 5", res)
			}
			for r := range f.Sci {
				for c := range f.Sci[r] {
					if f.Sci[r][c] != 1000 || f.Err[r][c] != 3.0 {
						t.Fatalf("amp B pixel (%d,%d) modified after kernel failure", r, c)
					}
				}
			}
			continue
		}
		if res.Skipped {
			t.Fatalf("amp %s skipped unexpectedly", f.Amp)
		}
		// Shift of 2 DN at gain 2 is 4 electrons on every pixel.
		for r := range f.Sci {
			for c := range f.Sci[r] {
				if math.Abs(f.Sci[r][c]-1004) > 1e-9 {
					t.Fatalf("amp %s pixel (%d,%d) = %v, want 1004", f.Amp, r, c, f.Sci[r][c])
				}
			}
		}
	}
}

func TestErrorPropagationQuadrature(t *testing.T) {
	d := testDriver(t, shiftKernel{delta: 4})
	f := flatFrame("C", 1.0, 1000)
	d.Run([]*quadrant.Frame{f})

	// Correction of 4 electrons: err = sqrt(3^2 + 0.4^2).
	want := math.Sqrt(9 + 0.16)
	for r := range f.Err {
		for c := range f.Err[r] {
			if math.Abs(f.Err[r][c]-want) > 1e-12 {
				t.Fatalf("error (%d,%d) = %v, want %v", r, c, f.Err[r][c], want)
			}
		}
	}
}

func TestKernelErrorIsNonFatal(t *testing.T) {
	errKernel := kernelFunc(func() ([][]float64, int, error) {
		return nil, 0, errors.New("exec: kernel binary vanished")
	})
	d := testDriver(t, errKernel)
	f := flatFrame("D", 1.0, 1000)
	results := d.Run([]*quadrant.Frame{f})
	if !results[0].Skipped {
		t.Fatalf("kernel error did not skip quadrant: %+v", results[0])
	}
	if f.Sci[0][0] != 1000 {
		t.Fatal("frame modified after kernel error")
	}
}

type kernelFunc func() ([][]float64, int, error)

func (fn kernelFunc) Apply([][]float64, int, []int, [][]float64, [][]float64, string, string) ([][]float64, int, error) {
	return fn()
}

func TestCaptureSplitKeepsSignalAndNoise(t *testing.T) {
	d := testDriver(t, shiftKernel{delta: 2})
	d.CaptureSplit = true
	f := flatFrame("C", 2.0, 1000)
	orig := copyPlane(f.Sci)

	results := d.Run([]*quadrant.Frame{f})
	res := results[0]
	if res.Signal == nil || res.Noise == nil {
		t.Fatalf("captured planes missing: %+v", res)
	}
	for r := range orig {
		for c := range orig[r] {
			// The split happens before any correction or gain scaling,
			// and the two planes must recombine to the original exactly.
			if res.Signal[r][c]+res.Noise[r][c] != orig[r][c] {
				t.Fatalf("pixel (%d,%d): signal %v + noise %v != original %v",
					r, c, res.Signal[r][c], res.Noise[r][c], orig[r][c])
			}
		}
	}
	if res.Signal[0][0] == f.Sci[0][0] {
		t.Fatal("captured signal tracks the corrected frame")
	}
}

func TestCaptureSplitSurvivesKernelFailure(t *testing.T) {
	d := testDriver(t, failingKernel{failAmp: "D", inner: identityKernel{}})
	d.CaptureSplit = true
	f := flatFrame("D", 1.0, 1000)

	res := d.Run([]*quadrant.Frame{f})[0]
	if !res.Skipped {
		t.Fatalf("expected skip: %+v", res)
	}
	if res.Signal == nil || res.Noise == nil {
		t.Fatal("skipped quadrant lost its captured planes")
	}
}

func TestCaptureSplitOffLeavesResultLean(t *testing.T) {
	d := testDriver(t, identityKernel{})
	res := d.Run([]*quadrant.Frame{flatFrame("C", 1.0, 1000)})[0]
	if res.Signal != nil || res.Noise != nil {
		t.Fatal("planes captured without CaptureSplit")
	}
}

func TestLogAmpPriority(t *testing.T) {
	cases := []struct {
		present []string
		want    string
	}{
		{[]string{"A", "B", "C", "D"}, "C"},
		{[]string{"A", "B", "D"}, "D"},
		{[]string{"B", "A"}, "A"},
		{[]string{"B"}, "B"},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := LogAmp(tc.present); got != tc.want {
			t.Fatalf("LogAmp(%v) = %q, want %q", tc.present, got, tc.want)
		}
	}
}

func TestValidate(t *testing.T) {
	d := testDriver(t, identityKernel{})
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate on complete driver: %v", err)
	}
	d.Kernel = nil
	if err := d.Validate(); err == nil {
		t.Fatal("Validate accepted missing kernel")
	}
}
