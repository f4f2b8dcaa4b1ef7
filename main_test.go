package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pixcte/correct"
	"pixcte/fitsimg"
	"pixcte/quadrant"
)

func TestExpandArgsPlainPaths(t *testing.T) {
	paths, err := expandArgs([]string{"a_flt.fits", "b_flt.fits"})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(paths) != 2 || paths[0] != "a_flt.fits" {
		t.Errorf("paths = %v", paths)
	}
}

func TestExpandArgsGlob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"j1_flt.fits", "j2_flt.fits", "other.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	paths, err := expandArgs([]string{filepath.Join(dir, "*_flt.fits")})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("paths = %v", paths)
	}
}

func TestExpandArgsEmptyGlob(t *testing.T) {
	if _, err := expandArgs([]string{filepath.Join(t.TempDir(), "*.fits")}); err == nil {
		t.Fatal("want error for pattern matching nothing")
	}
}

func TestRunSummaryCounts(t *testing.T) {
	s := newRunSummary()
	s.addExposure([]correct.Result{
		{Amp: "C"},
		{Amp: "D", Skipped: true, Status: 5},
	}, 100)
	s.addFailure()

	var buf bytes.Buffer
	s.print(&buf)
	out := buf.String()
	if !strings.Contains(out, "1 exposure(s), 2 quadrant(s), 200 pixels") {
		t.Errorf("summary %q", out)
	}
	if !strings.Contains(out, "Skipped 1 quadrant(s)") {
		t.Errorf("summary missing skip line: %q", out)
	}
	if !strings.Contains(out, "Failed 1 exposure(s)") {
		t.Errorf("summary missing failure line: %q", out)
	}
}

func constPlane(rows, cols int, v float64) [][]float64 {
	plane := make([][]float64, rows)
	for r := range plane {
		plane[r] = make([]float64, cols)
		for c := range plane[r] {
			plane[r][c] = v
		}
	}
	return plane
}

func TestWriteMosaicsEmitsSignalAndNoisePair(t *testing.T) {
	dir := t.TempDir()
	exp := &fitsimg.Exposure{RootName: "j8c103xq"}
	frames := []*quadrant.Frame{
		{Amp: "C", Sci: constPlane(2, 2, 0)},
		{Amp: "D", Sci: constPlane(2, 2, 0)},
	}
	results := []correct.Result{
		{Amp: "C", Signal: constPlane(2, 2, 100), Noise: constPlane(2, 2, -1)},
		{Amp: "D", Signal: constPlane(2, 2, 200), Noise: constPlane(2, 2, 2)},
	}

	if err := writeMosaics(dir, exp, frames, results); err != nil {
		t.Fatalf("writeMosaics: %v", err)
	}
	for _, name := range []string{"j8c103xq_cte_wo_tmp.fits", "j8c103xq_cte_rn_tmp.fits"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing mosaic %s: %v", name, err)
		}
	}
}

func TestWriteMosaicsNeedsCapturedPlanes(t *testing.T) {
	exp := &fitsimg.Exposure{RootName: "j8c103xq"}
	frames := []*quadrant.Frame{{Amp: "C", Sci: constPlane(2, 2, 0)}}
	results := []correct.Result{{Amp: "C"}}
	if err := writeMosaics(t.TempDir(), exp, frames, results); err == nil {
		t.Fatal("want error when signal/noise planes were not captured")
	}
}

func TestPrintQuadrantLine(t *testing.T) {
	var buf bytes.Buffer
	printQuadrantLine(&buf, "j8c103xq", correct.Result{Amp: "C", MeanAbsCorrection: 1.5, MaxAbsCorrection: 12})
	printQuadrantLine(&buf, "j8c103xq", correct.Result{Amp: "D", Skipped: true, Status: 3})

	out := buf.String()
	if !strings.Contains(out, "amp C: mean |corr| 1.500") {
		t.Errorf("output %q", out)
	}
	if !strings.Contains(out, "amp D: skipped (status 3)") {
		t.Errorf("output %q", out)
	}
}
