package ledger

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAppendAndDump(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "ledger"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []Record{
		{Root: "j8c103xq", Amp: "C", Status: 0, MeanAbsCorrection: 1.25, MaxAbsCorrection: 8.5,
			TimeScalar: 0.4, RefChecksum: "00000000deadbeef", RecordedAt: base},
		{Root: "j8c103xq", Amp: "D", Status: 5, Skipped: true,
			TimeScalar: 0.4, RefChecksum: "00000000deadbeef", RecordedAt: base.Add(time.Second)},
	}
	for _, rec := range recs {
		if err := store.Append(rec); err != nil {
			t.Fatalf("append %s: %v", rec.Amp, err)
		}
	}

	var buf bytes.Buffer
	if err := store.Dump(&buf); err != nil {
		t.Fatalf("dump: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d records, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"amp":"C"`) || !strings.Contains(lines[0], `"status":0`) {
		t.Errorf("first record wrong: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"skipped":true`) || !strings.Contains(lines[1], `"status":5`) {
		t.Errorf("second record wrong: %s", lines[1])
	}
}

func TestAppendFillsTimestamp(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "ledger"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Append(Record{Root: "j8c1", Amp: "A"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	var buf bytes.Buffer
	if err := store.Dump(&buf); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if strings.Contains(buf.String(), `"recorded_at":"0001-01-01`) {
		t.Errorf("timestamp not filled: %s", buf.String())
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Append(Record{Root: "j8c1", Amp: "B", Status: 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	var buf bytes.Buffer
	if err := store.Dump(&buf); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(buf.String(), `"amp":"B"`) {
		t.Errorf("record lost across reopen: %s", buf.String())
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("want error for empty path")
	}
}
