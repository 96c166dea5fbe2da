package gsf

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRegistryOpenCreatesAndReuses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swath.gsf")

	r := NewRegistry(2)
	f, err := r.Open(path, CREATE)
	if err != nil {
		t.Fatalf("Open CREATE: %v", err)
	}
	if r.OpenCount() != 1 {
		t.Fatalf("OpenCount = %d, want 1", r.OpenCount())
	}

	f2, err := r.Open(path, CREATE)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if f2 != f {
		t.Fatal("Open on an already-open path should return the same handle")
	}
	if r.OpenCount() != 1 {
		t.Fatalf("OpenCount after re-open = %d, want 1 (same slot)", r.OpenCount())
	}
}

func TestRegistryCloseClosesUnderlyingDescriptors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swath.gsf")

	r := NewRegistry(2)
	if _, err := r.Open(path, CREATE); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.Close(path); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.OpenCount() != 0 {
		t.Fatalf("OpenCount after Close = %d, want 0", r.OpenCount())
	}

	// Closing again should be a harmless no-op, not a double-close panic.
	if err := r.Close(path); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestRegistryRetainsScaleFactorsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swath.gsf")

	r := NewRegistry(2)
	f, err := r.Open(path, CREATE)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := f.scales.LoadScaleFactor(DEPTH, 0, 0.01, 0); err != nil {
		t.Fatalf("LoadScaleFactor: %v", err)
	}

	if err := r.Close(path); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := r.Open(path, UPDATE)
	if err != nil {
		t.Fatalf("reopen UPDATE: %v", err)
	}
	sf, ok := f2.scales.Get(DEPTH)
	if !ok || sf.Multiplier != 100 {
		t.Fatalf("reopened file lost retained scale factor table: %+v, ok=%v", sf, ok)
	}
}

func TestRegistryTooManyOpenFiles(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(1)

	if _, err := r.Open(filepath.Join(dir, "a.gsf"), CREATE); err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := r.Open(filepath.Join(dir, "b.gsf"), CREATE); err != ErrTooManyOpenFiles {
		t.Fatalf("second Open error = %v, want ErrTooManyOpenFiles", err)
	}
}

func TestRegistryOpenMissingFileFails(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(2)
	if _, err := r.Open(filepath.Join(dir, "missing.gsf"), READONLY); err == nil {
		t.Fatal("expected an error opening a nonexistent file READONLY")
	}
	if r.OpenCount() != 0 {
		t.Fatalf("OpenCount after failed Open = %d, want 0", r.OpenCount())
	}
}

func TestRegistryIndexedModeOpensSidecarFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "swath.gsf")

	r := NewRegistry(2)
	if _, err := r.Open(path, CREATE_INDEX); err != nil {
		t.Fatalf("Open CREATE_INDEX: %v", err)
	}
	if _, err := os.Stat(path + ".idx"); err != nil {
		t.Fatalf("expected sidecar index file to exist: %v", err)
	}
	if err := r.Close(path); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
