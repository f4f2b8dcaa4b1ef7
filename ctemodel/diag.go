package ctemodel

import (
	"fmt"
	"io"
)

// WriteDiagnostic renders the track tables as a fixed-width text table: one
// row per trap column with its originating charge level, the release value at
// each calibration node offset, and the final cumulative value. Purely
// observational; the tables are not touched.
func WriteDiagnostic(w io.Writer, track *TrapTrack, curve *FillCurve, nodeOffsets []int) error {
	if _, err := fmt.Fprintf(w, "%-1s%4s %5s ", "#", "Q", "P"); err != nil {
		return fmt.Errorf("ctemodel: write diagnostic header: %w", err)
	}
	for _, off := range nodeOffsets {
		fmt.Fprintf(w, "NODE_%-3d ", off)
	}
	fmt.Fprintf(w, "OPEN_%-3d\n", MaxOffset)

	for q := 0; q < track.QMax; q++ {
		if _, err := fmt.Fprintf(w, "%5d %5.0f ", q+1, curve.LevelOfTrap[q]); err != nil {
			return fmt.Errorf("ctemodel: write diagnostic row %d: %w", q+1, err)
		}
		for _, off := range nodeOffsets {
			fmt.Fprintf(w, "%8.4f ", track.Leak[off-1][q])
		}
		fmt.Fprintf(w, "%8.4f\n", track.Open[MaxOffset-1][q])
	}
	return nil
}
