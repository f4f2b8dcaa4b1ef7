// Package ledger keeps a durable record of correction runs: one entry per
// exposure and amp, with the kernel outcome and the size of the applied
// correction. The store is append-only from the pipeline's point of view and
// read back only by the dump tooling.
package ledger

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	ledgerVersion = 1

	metaVersionKey = "meta|version"
	runPrefix      = "run|"
)

// Record is one amp's correction outcome.
type Record struct {
	Root              string    `json:"root"`
	Amp               string    `json:"amp"`
	Status            int       `json:"status"`
	Skipped           bool      `json:"skipped"`
	MeanAbsCorrection float64   `json:"mean_abs_correction"`
	MaxAbsCorrection  float64   `json:"max_abs_correction"`
	TimeScalar        float64   `json:"time_scalar"`
	RefChecksum       string    `json:"ref_checksum"`
	RecordedAt        time.Time `json:"recorded_at"`
}

// Store is a pebble-backed ledger.
type Store struct {
	db   *pebble.DB
	path string
}

// Open opens (or creates) the ledger and verifies its version.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("ledger: empty path")
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}

	value, closer, err := db.Get([]byte(metaVersionKey))
	switch {
	case err == nil:
		version := string(value)
		closer.Close()
		if version != fmt.Sprintf("%d", ledgerVersion) {
			db.Close()
			return nil, fmt.Errorf("ledger: %s has version %s, want %d", path, version, ledgerVersion)
		}
	case err == pebble.ErrNotFound:
		if err := db.Set([]byte(metaVersionKey),
			[]byte(fmt.Sprintf("%d", ledgerVersion)), pebble.Sync); err != nil {
			db.Close()
			return nil, fmt.Errorf("ledger: stamp version: %w", err)
		}
	default:
		db.Close()
		return nil, fmt.Errorf("ledger: read version: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Append stores one record. The timestamp is filled in when unset.
func (s *Store) Append(rec Record) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger: encode record: %w", err)
	}
	key := fmt.Sprintf("%s%s|%s|%d", runPrefix, rec.Root, rec.Amp, rec.RecordedAt.UnixNano())
	if err := s.db.Set([]byte(key), payload, pebble.Sync); err != nil {
		return fmt.Errorf("ledger: append %s: %w", key, err)
	}
	return nil
}

// Dump writes every record to w as one JSON document per line, in key order.
func (s *Store) Dump(w io.Writer) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(runPrefix),
		UpperBound: []byte(runPrefix[:len(runPrefix)-1] + "}"),
	})
	if err != nil {
		return fmt.Errorf("ledger: iterate: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if _, err := w.Write(append(append([]byte(nil), iter.Value()...), '\n')); err != nil {
			return fmt.Errorf("ledger: dump: %w", err)
		}
	}
	return iter.Error()
}

// Close flushes and closes the store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
