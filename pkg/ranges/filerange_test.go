package ranges

import (
	"os"
	"path/filepath"
	"testing"
)

func touchFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestExpandDirs(t *testing.T) {
	base := t.TempDir()
	for _, d := range []string{"router1", "router2", "router3"} {
		if err := os.Mkdir(filepath.Join(base, d), 0755); err != nil {
			t.Fatalf("Mkdir: %v", err)
		}
	}

	got, err := ExpandDirs(filepath.Join(base, "router[1-3]"))
	if err != nil {
		t.Fatalf("ExpandDirs: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d dirs, want 3", len(got))
	}
}

func TestExpandDirsRejectsNonDirectory(t *testing.T) {
	base := t.TempDir()
	touchFile(t, base, "notadir")

	if _, err := ExpandDirs(filepath.Join(base, "notadir")); err == nil {
		t.Fatalf("expected error for non-directory entry")
	}
}

func TestExpandFileRangeWholeDirectory(t *testing.T) {
	dir := t.TempDir()
	touchFile(t, dir, "nfcapd.20240101000000")
	touchFile(t, dir, "nfcapd.20240101000500")
	touchFile(t, dir, "nfcapd.20240101001000")

	got, err := ExpandFileRange(dir)
	if err != nil {
		t.Fatalf("ExpandFileRange: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d files, want 3", len(got))
	}
}

func TestExpandFileRangeSlice(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"nfcapd.20240101000000",
		"nfcapd.20240101000500",
		"nfcapd.20240101001000",
		"nfcapd.20240101001500",
	}
	for _, n := range names {
		touchFile(t, dir, n)
	}

	got, err := ExpandFileRange(dir + "/nfcapd.20240101000500:nfcapd.20240101001000")
	if err != nil {
		t.Fatalf("ExpandFileRange: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d files, want 2: %v", len(got), got)
	}
	if filepath.Base(got[0]) != "nfcapd.20240101000500" || filepath.Base(got[1]) != "nfcapd.20240101001000" {
		t.Fatalf("unexpected slice: %v", got)
	}
}

func TestExpandFileRangeOpenEndedStart(t *testing.T) {
	dir := t.TempDir()
	touchFile(t, dir, "nfcapd.20240101000000")
	touchFile(t, dir, "nfcapd.20240101000500")

	got, err := ExpandFileRange(dir + "/:nfcapd.20240101000000")
	if err != nil {
		t.Fatalf("ExpandFileRange: %v", err)
	}
	if len(got) != 1 || filepath.Base(got[0]) != "nfcapd.20240101000000" {
		t.Fatalf("got %v, want just the first file", got)
	}
}
