package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"pixcte/correct"
)

// stdoutIsTerminal reports whether summaries go to an interactive terminal.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

type runSummary struct {
	started   time.Time
	exposures int
	quadrants int
	skipped   int
	pixels    int64
	failed    int
}

func newRunSummary() *runSummary {
	return &runSummary{started: time.Now()}
}

func (s *runSummary) addExposure(results []correct.Result, pixelsPerQuad int) {
	s.exposures++
	for _, r := range results {
		s.quadrants++
		s.pixels += int64(pixelsPerQuad)
		if r.Skipped {
			s.skipped++
		}
	}
}

func (s *runSummary) addFailure() {
	s.failed++
}

func (s *runSummary) print(w io.Writer) {
	elapsed := time.Since(s.started).Round(time.Millisecond)
	fmt.Fprintf(w, "Corrected %d exposure(s), %d quadrant(s), %s pixels in %s\n",
		s.exposures, s.quadrants, humanize.Comma(s.pixels), elapsed)
	if s.skipped > 0 {
		fmt.Fprintf(w, "Skipped %d quadrant(s) on kernel failure\n", s.skipped)
	}
	if s.failed > 0 {
		fmt.Fprintf(w, "Failed %d exposure(s), see log\n", s.failed)
	}
}

func printQuadrantLine(w io.Writer, root string, r correct.Result) {
	if r.Skipped {
		fmt.Fprintf(w, "  %s amp %s: skipped (status %d)\n", root, r.Amp, r.Status)
		return
	}
	fmt.Fprintf(w, "  %s amp %s: mean |corr| %.3f e-, max %.3f e-\n",
		root, r.Amp, r.MeanAbsCorrection, r.MaxAbsCorrection)
}
