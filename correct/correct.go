// Package correct drives the per-quadrant CTE correction: it separates noise
// from signal, hands the noiseless signal and the shared trap tables to the
// correction kernel, recombines the noise, and propagates the uncertainty.
package correct

import (
	"fmt"
	"log"
	"math"

	"pixcte/ctemodel"
	"pixcte/quadrant"
	"pixcte/readnoise"
)

// Kernel is the external trap-walk correction routine. It receives the
// noiseless signal in detector units plus the shared tables, and returns the
// corrected signal with a status code; status 0 means success, anything else
// means the quadrant must be skipped. Implementations must not retain or
// mutate their arguments.
type Kernel interface {
	Apply(sigDigital [][]float64, qmax int, trapsAtLevel []int,
		leak, open [][]float64, amp, logPath string) ([][]float64, int, error)
}

// ampLogPriority fixes which amp gets the detailed kernel log when several
// are present. The ordering is an instrument policy, not iteration order.
var ampLogPriority = []string{"C", "D", "A", "B"}

// LogAmp returns the amp that should receive detailed logging, or "" when
// none of the preferred amps is present.
func LogAmp(present []string) string {
	for _, want := range ampLogPriority {
		for _, amp := range present {
			if amp == want {
				return amp
			}
		}
	}
	return ""
}

// Driver runs the correction for the quadrants of one exposure. The trap
// tables are built once per exposure and shared read-only; the driver never
// writes to them.
type Driver struct {
	Track     *ctemodel.TrapTrack
	Curve     *ctemodel.FillCurve
	Separator *readnoise.Separator
	Kernel    Kernel

	// LogPath names the detailed kernel log given to the priority amp;
	// empty disables detailed logging entirely.
	LogPath string

	// CaptureSplit keeps each quadrant's noiseless-signal and noise planes
	// on its Result, for the diagnostic mosaics. Off by default: the planes
	// are quadrant-sized and the usual run has no use for them.
	CaptureSplit bool

	// Logf receives progress and skip reports. Defaults to log.Printf.
	Logf func(format string, args ...any)
}

// Result summarizes one quadrant's correction.
type Result struct {
	Amp     string
	Status  int
	Skipped bool

	// MeanAbsCorrection and MaxAbsCorrection describe the net applied
	// correction in electrons, for reporting and the run ledger.
	MeanAbsCorrection float64
	MaxAbsCorrection  float64

	// Signal and Noise are the separator's output in electrons, captured
	// before any correction when the driver's CaptureSplit is set. They are
	// populated even for skipped quadrants; nil otherwise.
	Signal [][]float64
	Noise  [][]float64
}

// Run corrects every frame in order. Frames are processed sequentially and
// mutated in place; a kernel failure skips that quadrant (its data passes
// through unchanged) and is reported, never fatal.
func (d *Driver) Run(frames []*quadrant.Frame) []Result {
	logf := d.Logf
	if logf == nil {
		logf = log.Printf
	}

	present := make([]string, len(frames))
	for i, f := range frames {
		present[i] = f.Amp
	}
	logAmp := LogAmp(present)

	results := make([]Result, 0, len(frames))
	for _, f := range frames {
		logf("correct: amp %s, gain %g", f.Amp, f.Gain)
		logPath := ""
		if f.Amp == logAmp {
			logPath = d.LogPath
		}
		results = append(results, d.correctFrame(f, logPath, logf))
	}
	return results
}

// correctFrame applies the full per-quadrant sequence from the reference
// pipeline: separate noise, convert electrons to detector units, run the
// kernel, convert back, restore noise, and fold 10% of the net correction
// into the error plane in quadrature.
func (d *Driver) correctFrame(f *quadrant.Frame, logPath string, logf func(string, ...any)) Result {
	res := Result{Amp: f.Amp}

	orig := copyPlane(f.Sci)
	signal, noise := d.Separator.Split(f.Sci)
	if d.CaptureSplit {
		// signal is about to be rescaled in place; noise stays untouched.
		res.Signal = copyPlane(signal)
		res.Noise = noise
	}

	scalePlane(signal, 1.0/f.Gain)

	corrected, status, err := d.Kernel.Apply(signal, d.Curve.QMax, d.Curve.TrapsAtLevel,
		d.Track.Leak, d.Track.Open, f.Amp, logPath)
	if err != nil {
		logf("correct: amp %s: kernel: %v; passing data through uncorrected", f.Amp, err)
		res.Skipped = true
		res.Status = -1
		return res
	}
	if status != 0 {
		logf("correct: amp %s: kernel returned status %d; passing data through uncorrected", f.Amp, status)
		res.Skipped = true
		res.Status = status
		return res
	}

	var sumAbs, maxAbs float64
	n := 0
	for r := range f.Sci {
		for c := range f.Sci[r] {
			fin := corrected[r][c]*f.Gain + noise[r][c]
			f.Sci[r][c] = fin

			dcte := 0.1 * math.Abs(fin-orig[r][c])
			f.Err[r][c] = math.Sqrt(f.Err[r][c]*f.Err[r][c] + dcte*dcte)

			delta := math.Abs(fin - orig[r][c])
			sumAbs += delta
			if delta > maxAbs {
				maxAbs = delta
			}
			n++
		}
	}
	if n > 0 {
		res.MeanAbsCorrection = sumAbs / float64(n)
	}
	res.MaxAbsCorrection = maxAbs
	return res
}

// Validate checks the driver wiring before a run.
func (d *Driver) Validate() error {
	switch {
	case d.Track == nil || d.Curve == nil:
		return fmt.Errorf("correct: trap tables not built")
	case d.Separator == nil:
		return fmt.Errorf("correct: no noise separator")
	case d.Kernel == nil:
		return fmt.Errorf("correct: no kernel")
	}
	return nil
}

func copyPlane(src [][]float64) [][]float64 {
	out := make([][]float64, len(src))
	for r := range src {
		out[r] = append([]float64(nil), src[r]...)
	}
	return out
}

func scalePlane(plane [][]float64, factor float64) {
	for r := range plane {
		for c := range plane[r] {
			plane[r][c] *= factor
		}
	}
}
