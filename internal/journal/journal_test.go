package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	for i, status := range []string{"placed", "skipped", "placed"} {
		rec := Record{
			Key:    "0xw:0xt" + string(rune('1'+i)) + ":1",
			Status: status,
			At:     base.Add(time.Duration(i) * time.Minute),
		}
		if err := j.Append(rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	recs, err := j.ReadSince(base.Add(30 * time.Second))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records after cutoff, want 2", len(recs))
	}
	if recs[0].Status != "skipped" || recs[1].Status != "placed" {
		t.Fatalf("wrong records: %+v", recs)
	}
}

func TestAppendStampsTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	fixed := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	if err := j.Append(Record{Key: "k", Status: "placed"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	recs, err := j.ReadSince(time.Time{})
	if err != nil || len(recs) != 1 {
		t.Fatalf("read: %v recs=%d", err, len(recs))
	}
	if !recs[0].At.Equal(fixed) {
		t.Fatalf("at=%v want %v", recs[0].At, fixed)
	}
}

func TestReadSkipsGarbageLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := j.Append(Record{Key: "k1", Status: "placed", At: time.Now().UTC()}); err != nil {
		t.Fatalf("append: %v", err)
	}
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	f.WriteString("not json\n")
	f.Close()
	if err := j.Append(Record{Key: "k2", Status: "skipped", At: time.Now().UTC()}); err != nil {
		t.Fatalf("append: %v", err)
	}

	recs, err := j.ReadSince(time.Time{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
}

func TestReadMissingFile(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	recs, err := j.ReadSince(time.Time{})
	if err != nil || recs != nil {
		t.Fatalf("missing file should read empty, got %v recs=%v", err, recs)
	}
}
