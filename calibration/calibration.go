// Package calibration loads the charge-trap reference data that drives table
// construction: sparse leak nodes, fill-curve nodes, and the noise iteration
// count, keyed by detector and selected by exposure epoch. The reference lives
// in a read-only SQLite database.
package calibration

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	lev "github.com/agnivade/levenshtein"

	"pixcte/ctemodel"
)

var (
	// ErrNotFound reports missing reference data: an unknown detector or
	// an exposure epoch no leak-node set covers.
	ErrNotFound = errors.New("calibration: reference data not found")

	// ErrMalformed reports reference data that parsed but cannot be used.
	ErrMalformed = errors.New("calibration: malformed reference data")

	// ErrInvalidRange reports a degenerate calibration epoch pair.
	ErrInvalidRange = errors.New("calibration: invalid epoch range")
)

// Set is the immutable calibration input for one correction run.
type Set struct {
	Detector        string
	LeakNodes       []ctemodel.LeakNode
	FillNodes       []float64
	NoiseIterations int

	// Epoch1 and Epoch2 are the two calibration epochs (MJD) anchoring the
	// linear time dependence.
	Epoch1, Epoch2 float64

	// Checksum identifies the reference file the set came from.
	Checksum uint64
}

// NodeOffsets returns the sparse leak-node offsets, used by the diagnostic
// table renderer.
func (s *Set) NodeOffsets() []int {
	offsets := make([]int, len(s.LeakNodes))
	for i, n := range s.LeakNodes {
		offsets[i] = n.Offset
	}
	return offsets
}

// Load reads the calibration set for a detector, selecting the leak-node set
// whose epoch window contains the exposure epoch.
func (db *DB) Load(detector string, epoch float64) (*Set, error) {
	set := &Set{Detector: detector, Checksum: db.checksum}

	row := db.sql.QueryRow(
		`select rn2_nit, epoch1, epoch2 from meta where detector = ?`, detector)
	err := row.Scan(&set.NoiseIterations, &set.Epoch1, &set.Epoch2)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.unknownDetector(detector)
	}
	if err != nil {
		return nil, fmt.Errorf("calibration: read meta for %s: %w", detector, err)
	}
	if set.Epoch1 == set.Epoch2 {
		return nil, fmt.Errorf("%w: epochs %g and %g coincide for %s",
			ErrInvalidRange, set.Epoch1, set.Epoch2, detector)
	}

	if set.FillNodes, err = db.loadFillNodes(detector); err != nil {
		return nil, err
	}
	if set.LeakNodes, err = db.loadLeakNodes(detector, epoch); err != nil {
		return nil, err
	}
	return set, nil
}

func (db *DB) loadFillNodes(detector string) ([]float64, error) {
	rows, err := db.sql.Query(
		`select fraction from phi_node where detector = ? order by node`, detector)
	if err != nil {
		return nil, fmt.Errorf("calibration: read fill nodes for %s: %w", detector, err)
	}
	defer rows.Close()

	var nodes []float64
	for rows.Next() {
		var f float64
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("calibration: scan fill node: %w", err)
		}
		nodes = append(nodes, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("calibration: read fill nodes for %s: %w", detector, err)
	}
	if len(nodes) < 2 {
		return nil, fmt.Errorf("%w: %d fill nodes for %s", ErrMalformed, len(nodes), detector)
	}
	return nodes, nil
}

func (db *DB) loadLeakNodes(detector string, epoch float64) ([]ctemodel.LeakNode, error) {
	rows, err := db.sql.Query(
		`select "offset", f1, f2, f3, f4 from psi_node
		 where detector = ? and mjd1 <= ? and ? < mjd2 order by "offset"`,
		detector, epoch, epoch)
	if err != nil {
		return nil, fmt.Errorf("calibration: read leak nodes for %s: %w", detector, err)
	}
	defer rows.Close()

	var nodes []ctemodel.LeakNode
	for rows.Next() {
		var n ctemodel.LeakNode
		if err := rows.Scan(&n.Offset, &n.Fractions[0], &n.Fractions[1], &n.Fractions[2], &n.Fractions[3]); err != nil {
			return nil, fmt.Errorf("calibration: scan leak node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("calibration: read leak nodes for %s: %w", detector, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no leak node set covers epoch %.1f for %s",
			ErrNotFound, epoch, detector)
	}
	if len(nodes) < 2 {
		return nil, fmt.Errorf("%w: %d leak nodes for %s", ErrMalformed, len(nodes), detector)
	}
	for i := 1; i < len(nodes); i++ {
		if nodes[i].Offset <= nodes[i-1].Offset {
			return nil, fmt.Errorf("%w: leak offsets not strictly increasing for %s",
				ErrMalformed, detector)
		}
	}
	if nodes[0].Offset != 1 || nodes[len(nodes)-1].Offset > ctemodel.MaxOffset {
		return nil, fmt.Errorf("%w: leak offsets span %d..%d for %s",
			ErrMalformed, nodes[0].Offset, nodes[len(nodes)-1].Offset, detector)
	}
	return nodes, nil
}

// unknownDetector builds an ErrNotFound carrying the nearest known detector
// name, so a typo in a header does not send anyone reading schema dumps.
func (db *DB) unknownDetector(detector string) error {
	rows, err := db.sql.Query(`select distinct detector from meta order by detector`)
	if err != nil {
		return fmt.Errorf("%w: detector %q", ErrNotFound, detector)
	}
	defer rows.Close()

	var known []string
	for rows.Next() {
		var d string
		if rows.Scan(&d) == nil {
			known = append(known, d)
		}
	}
	if len(known) == 0 {
		return fmt.Errorf("%w: detector %q (reference database is empty)", ErrNotFound, detector)
	}

	sort.Slice(known, func(i, j int) bool {
		di := lev.ComputeDistance(strings.ToUpper(detector), known[i])
		dj := lev.ComputeDistance(strings.ToUpper(detector), known[j])
		return di < dj
	})
	return fmt.Errorf("%w: detector %q (closest match: %s)", ErrNotFound, detector, known[0])
}
