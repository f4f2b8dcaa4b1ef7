// Package fitsimg reads and writes the FITS exposure containers the
// correction operates on: paired SCI/ERR image extensions plus the primary
// header keywords that drive calibration lookup (exposure epoch, detector,
// reference name, amp roster and gains).
package fitsimg

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/astrogo/fitsio"
)

// ErrBadContainer reports a file that opened as FITS but does not look like a
// flat-fielded exposure this tool can correct.
var ErrBadContainer = errors.New("fitsimg: unusable exposure container")

// Exposure is one flat-fielded exposure held fully in memory. Sci and Err
// hold one plane per chip, in file order; planes are indexed [row][col] with
// row 0 at the bottom of the chip.
type Exposure struct {
	Path     string
	RootName string
	ExpStart float64
	Detector string
	RefName  string
	Amps     []string
	Gains    map[string]float64

	Sci [][][]float64
	Err [][][]float64
}

// CorrectionMeta is written into the output primary header after a run.
type CorrectionMeta struct {
	TimeScalar  float64
	RefChecksum uint64
	NoiseModel  string
	Iterations  int
}

// OpenExposure loads an exposure container from disk.
func OpenExposure(path string) (*Exposure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fitsimg: open %s: %w", path, err)
	}
	defer f.Close()

	fits, err := fitsio.Open(f)
	if err != nil {
		return nil, fmt.Errorf("fitsimg: parse %s: %w", path, err)
	}
	defer fits.Close()

	hdus := fits.HDUs()
	if len(hdus) == 0 {
		return nil, fmt.Errorf("%w: %s has no HDUs", ErrBadContainer, path)
	}
	primary := hdus[0].Header()

	exp := &Exposure{Path: path, Gains: make(map[string]float64)}
	if exp.RootName, err = headerString(primary, "ROOTNAME"); err != nil {
		return nil, fmt.Errorf("fitsimg: %s: %w", path, err)
	}
	if exp.ExpStart, err = headerFloat(primary, "EXPSTART"); err != nil {
		return nil, fmt.Errorf("fitsimg: %s: %w", path, err)
	}
	if exp.Detector, err = headerString(primary, "DETECTOR"); err != nil {
		return nil, fmt.Errorf("fitsimg: %s: %w", path, err)
	}
	if exp.RefName, err = headerString(primary, "PCTEFILE"); err != nil {
		return nil, fmt.Errorf("fitsimg: %s: %w", path, err)
	}

	roster, err := headerString(primary, "CCDAMP")
	if err != nil {
		return nil, fmt.Errorf("fitsimg: %s: %w", path, err)
	}
	for _, amp := range strings.Split(strings.TrimSpace(roster), "") {
		gain, err := headerFloat(primary, "ATODGN"+amp)
		if err != nil {
			return nil, fmt.Errorf("fitsimg: %s: amp %s: %w", path, amp, err)
		}
		exp.Amps = append(exp.Amps, amp)
		exp.Gains[amp] = gain
	}

	for _, hdu := range hdus[1:] {
		img, ok := hdu.(fitsio.Image)
		if !ok {
			continue
		}
		name := cardString(img.Header(), "EXTNAME")
		switch name {
		case "SCI":
			plane, err := readPlane(img)
			if err != nil {
				return nil, fmt.Errorf("fitsimg: %s SCI: %w", path, err)
			}
			exp.Sci = append(exp.Sci, plane)
		case "ERR":
			plane, err := readPlane(img)
			if err != nil {
				return nil, fmt.Errorf("fitsimg: %s ERR: %w", path, err)
			}
			exp.Err = append(exp.Err, plane)
		}
	}
	if len(exp.Sci) == 0 || len(exp.Sci) != len(exp.Err) {
		return nil, fmt.Errorf("%w: %s has %d SCI and %d ERR planes",
			ErrBadContainer, path, len(exp.Sci), len(exp.Err))
	}
	return exp, nil
}

// WriteExposure writes the (corrected) exposure to path, rebuilding the
// container: primary header with bookkeeping keywords, then one SCI/ERR pair
// per plane.
func WriteExposure(path string, exp *Exposure, meta CorrectionMeta) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fitsimg: create %s: %w", path, err)
	}
	defer f.Close()

	fits, err := fitsio.Create(f)
	if err != nil {
		return fmt.Errorf("fitsimg: create container %s: %w", path, err)
	}
	defer fits.Close()

	phdu, err := fitsio.NewPrimaryHDU(nil)
	if err != nil {
		return fmt.Errorf("fitsimg: primary HDU: %w", err)
	}
	cards := []fitsio.Card{
		{Name: "ROOTNAME", Value: exp.RootName},
		{Name: "EXPSTART", Value: exp.ExpStart, Comment: "exposure start (MJD)"},
		{Name: "DETECTOR", Value: exp.Detector},
		{Name: "PCTEFILE", Value: exp.RefName},
		{Name: "CCDAMP", Value: strings.Join(exp.Amps, "")},
		{Name: "PCTECORR", Value: "COMPLETE"},
		{Name: "PCTEFRAC", Value: meta.TimeScalar, Comment: "time scaling of trap model"},
		{Name: "PCTESUM", Value: fmt.Sprintf("%016x", meta.RefChecksum), Comment: "reference file checksum"},
		{Name: "HISTORY", Value: fmt.Sprintf("CTE noise model is %s", meta.NoiseModel)},
		{Name: "HISTORY", Value: fmt.Sprintf("CTE noise iterations %d", meta.Iterations)},
		{Name: "HISTORY", Value: "pixel-based CTE correction complete"},
	}
	for _, amp := range exp.Amps {
		cards = append(cards, fitsio.Card{
			Name:    "ATODGN" + amp,
			Value:   exp.Gains[amp],
			Comment: "amp gain (e-/DN)",
		})
	}
	if err := phdu.Header().Append(cards...); err != nil {
		return fmt.Errorf("fitsimg: primary header: %w", err)
	}
	if err := fits.Write(phdu); err != nil {
		return fmt.Errorf("fitsimg: write primary: %w", err)
	}

	for i := range exp.Sci {
		if err := writePlane(fits, exp.Sci[i], "SCI", i+1); err != nil {
			return fmt.Errorf("fitsimg: %s: %w", path, err)
		}
		if err := writePlane(fits, exp.Err[i], "ERR", i+1); err != nil {
			return fmt.Errorf("fitsimg: %s: %w", path, err)
		}
	}
	return nil
}

// WriteMosaic writes a single-HDU float image, used for the diagnostic
// noiseless-signal and noise mosaics.
func WriteMosaic(path string, plane [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fitsimg: create %s: %w", path, err)
	}
	defer f.Close()

	fits, err := fitsio.Create(f)
	if err != nil {
		return fmt.Errorf("fitsimg: create container %s: %w", path, err)
	}
	defer fits.Close()

	img := fitsio.NewImage(-32, []int{cols(plane), len(plane)})
	defer img.Close()
	if err := img.Write(flatten(plane)); err != nil {
		return fmt.Errorf("fitsimg: write mosaic data: %w", err)
	}
	if err := fits.Write(img); err != nil {
		return fmt.Errorf("fitsimg: write mosaic: %w", err)
	}
	return nil
}

func writePlane(fits *fitsio.File, plane [][]float64, name string, version int) error {
	img := fitsio.NewImage(-32, []int{cols(plane), len(plane)})
	defer img.Close()
	err := img.Header().Append(
		fitsio.Card{Name: "EXTNAME", Value: name},
		fitsio.Card{Name: "EXTVER", Value: version},
	)
	if err != nil {
		return fmt.Errorf("%s %d header: %w", name, version, err)
	}
	if err := img.Write(flatten(plane)); err != nil {
		return fmt.Errorf("%s %d data: %w", name, version, err)
	}
	if err := fits.Write(img); err != nil {
		return fmt.Errorf("%s %d: %w", name, version, err)
	}
	return nil
}

func readPlane(img fitsio.Image) ([][]float64, error) {
	axes := img.Header().Axes()
	if len(axes) != 2 {
		return nil, fmt.Errorf("%w: image has %d axes", ErrBadContainer, len(axes))
	}
	nc, nr := axes[0], axes[1]

	var flat []float64
	switch img.Header().Bitpix() {
	case -32:
		raw := make([]float32, 0, nc*nr)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		flat = make([]float64, len(raw))
		for i, v := range raw {
			flat[i] = float64(v)
		}
	case -64:
		raw := make([]float64, 0, nc*nr)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		flat = raw
	default:
		return nil, fmt.Errorf("%w: bitpix %d not supported", ErrBadContainer, img.Header().Bitpix())
	}
	if len(flat) != nc*nr {
		return nil, fmt.Errorf("%w: %d values for %dx%d image", ErrBadContainer, len(flat), nc, nr)
	}

	plane := make([][]float64, nr)
	for r := 0; r < nr; r++ {
		plane[r] = flat[r*nc : (r+1)*nc]
	}
	return plane, nil
}

func flatten(plane [][]float64) *[]float32 {
	flat := make([]float32, 0, len(plane)*cols(plane))
	for _, row := range plane {
		for _, v := range row {
			flat = append(flat, float32(v))
		}
	}
	return &flat
}

func cols(plane [][]float64) int {
	if len(plane) == 0 {
		return 0
	}
	return len(plane[0])
}

func headerString(hdr *fitsio.Header, key string) (string, error) {
	card := hdr.Get(key)
	if card == nil {
		return "", fmt.Errorf("%w: missing %s", ErrBadContainer, key)
	}
	s, ok := card.Value.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, want string", ErrBadContainer, key, card.Value)
	}
	return strings.TrimSpace(s), nil
}

func headerFloat(hdr *fitsio.Header, key string) (float64, error) {
	card := hdr.Get(key)
	if card == nil {
		return 0, fmt.Errorf("%w: missing %s", ErrBadContainer, key)
	}
	switch v := card.Value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	}
	return 0, fmt.Errorf("%w: %s is %T, want float", ErrBadContainer, key, card.Value)
}

func cardString(hdr *fitsio.Header, key string) string {
	if card := hdr.Get(key); card != nil {
		if s, ok := card.Value.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
