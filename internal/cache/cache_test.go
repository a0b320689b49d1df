package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/phlash/azure-sync/internal/fingerprint"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nonexistent-cache"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := c.Lookup("a.txt", 5, 1.0); ok {
		t.Fatal("expected no entry in empty cache")
	}
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.bin")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	seq := fingerprint.Sequence{{Length: 5, ID: "c1"}, {Length: 0, ID: "whole"}}
	c.Put("a.txt", 5, 100.5, seq)
	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, ok := reloaded.Lookup("a.txt", 5, 100.5)
	if !ok {
		t.Fatal("expected cache hit after reload")
	}
	if len(got) != 2 || got.WholeFileHash() != "whole" {
		t.Fatalf("got %+v", got)
	}
}

func TestSaveNoOpWhenNotDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.bin")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected Save() with nothing dirty to not create a file")
	}
}
