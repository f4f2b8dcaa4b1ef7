package calibration

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/zeebo/xxh3"
	_ "modernc.org/sqlite"
)

// DB is a read-only handle on a calibration reference database.
type DB struct {
	sql      *sql.DB
	path     string
	checksum uint64
}

// Open opens a reference database read-only, verifies its integrity with a
// quick check, and records a content checksum for provenance. The reference
// file is never modified or moved, even when broken: a bad calibration file
// is a fatal configuration problem, not something to repair at runtime.
func Open(path string) (*DB, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}

	handle, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("calibration: open %s: %w", path, err)
	}
	var verdict string
	if err := handle.QueryRow(`pragma quick_check`).Scan(&verdict); err != nil {
		handle.Close()
		return nil, fmt.Errorf("%w: quick_check on %s: %v", ErrMalformed, path, err)
	}
	if verdict != "ok" {
		handle.Close()
		return nil, fmt.Errorf("%w: quick_check on %s reported %q", ErrMalformed, path, verdict)
	}

	return &DB{
		sql:      handle,
		path:     path,
		checksum: xxh3.Hash(payload),
	}, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }

// Checksum returns the xxh3 content hash recorded at open time.
func (db *DB) Checksum() uint64 { return db.checksum }

// Close releases the database handle.
func (db *DB) Close() error {
	if db == nil || db.sql == nil {
		return nil
	}
	return db.sql.Close()
}
