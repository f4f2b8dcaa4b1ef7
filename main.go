// Command pixcte applies a pixel-based charge transfer efficiency correction
// to flat-fielded exposures. For each input file it loads the matching
// calibration reference, builds the trap model for the observation epoch,
// splits every readout quadrant into amp-oriented frames, runs the correction
// kernel per quadrant, and writes a corrected copy of the exposure.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"pixcte/calibration"
	"pixcte/config"
	"pixcte/correct"
	"pixcte/ctemodel"
	"pixcte/fitsimg"
	"pixcte/kernel"
	"pixcte/ledger"
	"pixcte/quadrant"
	"pixcte/readnoise"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	outDir := flag.String("out", ".", "directory for corrected outputs")
	dryRun := flag.Bool("dry-run", false, "run the correction but write nothing")
	ledgerDump := flag.Bool("ledger-dump", false, "print the run ledger as JSON lines and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pixcte: %v\n", err)
		os.Exit(1)
	}

	fanout, err := setupLogging(cfg.Logging, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pixcte: %v\n", err)
	}
	log.SetFlags(0)
	log.SetOutput(fanout)
	defer fanout.Close()

	if *ledgerDump {
		if err := dumpLedger(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "pixcte: %v\n", err)
			os.Exit(1)
		}
		return
	}

	paths, err := expandArgs(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "pixcte: %v\n", err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "pixcte: no input exposures given")
		flag.Usage()
		os.Exit(2)
	}

	if stdoutIsTerminal() {
		cfg.Print()
	}

	var store *ledger.Store
	if cfg.Ledger.Enabled && !*dryRun {
		store, err = ledger.Open(cfg.Ledger.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pixcte: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	summary := newRunSummary()
	for _, path := range paths {
		if err := processExposure(cfg, path, *outDir, *dryRun, store, summary); err != nil {
			log.Printf("pixcte: %s: %v", path, err)
			summary.addFailure()
		}
	}
	summary.print(os.Stdout)
	if summary.failed > 0 {
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func dumpLedger(cfg *config.Config) error {
	if !cfg.Ledger.Enabled {
		return fmt.Errorf("ledger is not enabled in the configuration")
	}
	store, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Dump(os.Stdout)
}

// expandArgs resolves glob patterns that the shell did not expand and keeps
// plain paths as-is.
func expandArgs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[") {
			paths = append(paths, arg)
			continue
		}
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern %q matched nothing", arg)
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

func processExposure(cfg *config.Config, path, outDir string, dryRun bool,
	store *ledger.Store, summary *runSummary) error {

	exp, err := fitsimg.OpenExposure(path)
	if err != nil {
		return err
	}
	log.Printf("pixcte: %s: detector %s, amps %s, epoch %.2f",
		exp.RootName, exp.Detector, strings.Join(exp.Amps, ""), exp.ExpStart)

	refPath := filepath.Join(cfg.Calibration.ReferenceDir, exp.RefName)
	db, err := calibration.Open(refPath)
	if err != nil {
		return err
	}
	defer db.Close()

	set, err := db.Load(exp.Detector, exp.ExpStart)
	if err != nil {
		return err
	}
	scalar, err := set.TimeScale(exp.ExpStart)
	if err != nil {
		return err
	}
	if scalar < 0 || scalar > 1 {
		log.Printf("pixcte: %s: epoch %.2f is outside the calibrated range, scaling by %.4f",
			exp.RootName, exp.ExpStart, scalar)
	}

	profile, err := ctemodel.BuildLeakProfile(set.LeakNodes)
	if err != nil {
		return err
	}
	curve, err := ctemodel.BuildFillCurve(set.FillNodes, scalar)
	if err != nil {
		return err
	}
	track, err := ctemodel.BuildTrapTrack(profile, curve)
	if err != nil {
		return err
	}

	if cfg.Correction.Diagnostics && !dryRun {
		diagPath := filepath.Join(outDir, exp.RootName+"_cte_model.txt")
		if err := writeDiagnosticFile(diagPath, track, curve, set.NodeOffsets()); err != nil {
			log.Printf("pixcte: %s: diagnostics: %v", exp.RootName, err)
		}
	}

	iterations := cfg.Correction.NoiseIterations
	if iterations == 0 {
		iterations = set.NoiseIterations
	}
	sep, err := readnoise.NewSeparator(readnoise.Model(cfg.Correction.NoiseModel),
		iterations, cfg.Correction.ReadNoise)
	if err != nil {
		return err
	}

	driver := &correct.Driver{
		Track:        track,
		Curve:        curve,
		Separator:    sep,
		Kernel:       buildKernel(cfg),
		CaptureSplit: cfg.Correction.WriteMosaics && !dryRun,
	}
	if cfg.Correction.Diagnostics && !dryRun {
		driver.LogPath = filepath.Join(outDir, exp.RootName+"_cte_kernel.log")
	}
	if err := driver.Validate(); err != nil {
		return err
	}

	frames := make([]*quadrant.Frame, 0, len(exp.Amps))
	for _, amp := range exp.Amps {
		p, ok := quadrant.PlacementFor(amp)
		if !ok {
			return fmt.Errorf("unknown amp %q in CCDAMP", amp)
		}
		if p.Plane >= len(exp.Sci) {
			return fmt.Errorf("amp %s needs chip %d but the exposure has %d",
				amp, p.Plane, len(exp.Sci))
		}
		frame, err := quadrant.Extract(exp.Sci[p.Plane], exp.Err[p.Plane], amp, exp.Gains[amp])
		if err != nil {
			return err
		}
		frames = append(frames, frame)
	}

	results := driver.Run(frames)

	for _, frame := range frames {
		p, _ := quadrant.PlacementFor(frame.Amp)
		if err := frame.WriteBack(exp.Sci[p.Plane], exp.Err[p.Plane]); err != nil {
			return err
		}
	}

	pixelsPerQuad := 0
	if len(frames) > 0 && len(frames[0].Sci) > 0 {
		pixelsPerQuad = len(frames[0].Sci) * len(frames[0].Sci[0])
	}
	summary.addExposure(results, pixelsPerQuad)
	for _, r := range results {
		printQuadrantLine(os.Stdout, exp.RootName, r)
		if store != nil {
			rec := ledger.Record{
				Root:              exp.RootName,
				Amp:               r.Amp,
				Status:            r.Status,
				Skipped:           r.Skipped,
				MeanAbsCorrection: r.MeanAbsCorrection,
				MaxAbsCorrection:  r.MaxAbsCorrection,
				TimeScalar:        scalar,
				RefChecksum:       fmt.Sprintf("%016x", db.Checksum()),
			}
			if err := store.Append(rec); err != nil {
				log.Printf("pixcte: %s: ledger: %v", exp.RootName, err)
			}
		}
	}

	if dryRun {
		log.Printf("pixcte: %s: dry run, nothing written", exp.RootName)
		return nil
	}

	outPath := filepath.Join(outDir, exp.RootName+"_cte.fits")
	meta := fitsimg.CorrectionMeta{
		TimeScalar:  scalar,
		RefChecksum: db.Checksum(),
		NoiseModel:  cfg.Correction.NoiseModel,
		Iterations:  iterations,
	}
	if err := fitsimg.WriteExposure(outPath, exp, meta); err != nil {
		return err
	}
	log.Printf("pixcte: %s: wrote %s", exp.RootName, outPath)

	if cfg.Correction.WriteMosaics {
		if err := writeMosaics(outDir, exp, frames, results); err != nil {
			log.Printf("pixcte: %s: mosaics: %v", exp.RootName, err)
		}
	}
	return nil
}

func buildKernel(cfg *config.Config) correct.Kernel {
	if cfg.Kernel.Command == "" {
		return kernel.Passthrough{}
	}
	return &kernel.Exec{Command: cfg.Kernel.Command, Args: cfg.Kernel.Args}
}

func writeDiagnosticFile(path string, track *ctemodel.TrapTrack,
	curve *ctemodel.FillCurve, nodeOffsets []int) error {

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ctemodel.WriteDiagnostic(f, track, curve, nodeOffsets); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeMosaics assembles the per-quadrant noiseless-signal and noise planes
// captured before correction into a full-detector image pair in physical
// orientation, for inspecting what the separation fed the kernel.
func writeMosaics(outDir string, exp *fitsimg.Exposure, frames []*quadrant.Frame, results []correct.Result) error {
	if len(frames) == 0 {
		return nil
	}
	rows := len(frames[0].Sci)
	columns := 0
	if rows > 0 {
		columns = 2 * len(frames[0].Sci[0])
	}
	signal := quadrant.MosaicTemplate(rows, columns)
	noise := quadrant.MosaicTemplate(rows, columns)
	for i, frame := range frames {
		if results[i].Signal == nil {
			return fmt.Errorf("amp %s: no captured signal/noise planes", frame.Amp)
		}
		if err := quadrant.Place(signal, results[i].Signal, frame.Amp); err != nil {
			return err
		}
		if err := quadrant.Place(noise, results[i].Noise, frame.Amp); err != nil {
			return err
		}
	}
	if err := fitsimg.WriteMosaic(filepath.Join(outDir, exp.RootName+"_cte_wo_tmp.fits"), signal); err != nil {
		return err
	}
	return fitsimg.WriteMosaic(filepath.Join(outDir, exp.RootName+"_cte_rn_tmp.fits"), noise)
}
