package fileseq

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestNextWalksInOrder(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, dir, "nfcapd.20240101000000")
	b := touch(t, dir, "nfcapd.20240101000500")

	seq := New([]string{a, b}, time.Time{}, time.Time{})

	var got []string
	for {
		f, p, ok := seq.Next()
		if !ok {
			break
		}
		got = append(got, p)
		f.Close()
	}
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("got %v, want [%s %s]", got, a, b)
	}
}

func TestTimeWindowSkipsOutsideFiles(t *testing.T) {
	dir := t.TempDir()
	early := touch(t, dir, "nfcapd.20240101000000")
	inside := touch(t, dir, "nfcapd.20240101010000")
	late := touch(t, dir, "nfcapd.20240101050000")

	start, _ := time.Parse("2006-01-02 15:04:05", "2024-01-01 00:30:00")
	end, _ := time.Parse("2006-01-02 15:04:05", "2024-01-01 02:00:00")

	seq := New([]string{early, inside, late}, start, end)

	var got []string
	for {
		f, p, ok := seq.Next()
		if !ok {
			break
		}
		got = append(got, p)
		f.Close()
	}
	if len(got) != 1 || got[0] != inside {
		t.Fatalf("got %v, want only [%s]", got, inside)
	}
	if seq.Skipped != 2 {
		t.Fatalf("Skipped = %d, want 2", seq.Skipped)
	}
}

func TestFilesWithNoTimestampNeverSkipped(t *testing.T) {
	dir := t.TempDir()
	p := touch(t, dir, "archive-no-timestamp.nf")

	start, _ := time.Parse("2006-01-02", "2030-01-01")
	seq := New([]string{p}, start, time.Time{})

	f, got, ok := seq.Next()
	if !ok {
		t.Fatalf("expected untimestamped file to be opened, not skipped")
	}
	defer f.Close()
	if got != p {
		t.Fatalf("got %q, want %q", got, p)
	}
}

func TestExhaustedSequenceReturnsFalse(t *testing.T) {
	seq := New(nil, time.Time{}, time.Time{})
	if _, _, ok := seq.Next(); ok {
		t.Fatalf("expected empty sequence to report exhausted immediately")
	}
}

func TestParseStamp(t *testing.T) {
	ts, ok := ParseStamp("nfcapd.20240101000000")
	if !ok {
		t.Fatalf("expected timestamp to parse")
	}
	if ts.Year() != 2024 {
		t.Fatalf("year = %d, want 2024", ts.Year())
	}
	if _, ok := ParseStamp("no-timestamp-here"); ok {
		t.Fatalf("expected no match")
	}
}
