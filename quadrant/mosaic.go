package quadrant

import "fmt"

// MosaicTemplate allocates a full-detector mosaic for two stacked planes of
// the given shape: plane 0 on the bottom rows, plane 1 above it.
func MosaicTemplate(planeRows, planeCols int) [][]float64 {
	mosaic := make([][]float64, 2*planeRows)
	for r := range mosaic {
		mosaic[r] = make([]float64, planeCols)
	}
	return mosaic
}

// Place writes amp-oriented data into the mosaic at the amp's detector
// position, undoing the readout flips first. Used for the optional
// noiseless-signal and noise diagnostic images.
func Place(mosaic [][]float64, data [][]float64, amp string) error {
	p, ok := placements[amp]
	if !ok {
		return fmt.Errorf("quadrant: unknown amp %q", amp)
	}
	planeRows := len(mosaic) / 2
	if len(data) != planeRows {
		return fmt.Errorf("quadrant: amp %s: data rows %d do not fit mosaic half %d",
			amp, len(data), planeRows)
	}
	sub := mosaic[p.Plane*planeRows : (p.Plane+1)*planeRows]
	writeHalf(sub, data, p)
	return nil
}
