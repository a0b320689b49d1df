// Package cache persists chunk fingerprints across runs, keyed by
// (path, size, mtime), so a file whose local content is provably
// unchanged is never re-read and re-chunked (SPEC_FULL.md §4.4/§4.13,
// C12). This cannot be subsumed by the reconciler's own fast path: the
// fast path only skips a file when the *remote* blob's recorded mtime
// also matches local; if another peer pushed a new blob version for an
// otherwise untouched local file, the reconciler still needs this
// file's fingerprints, which the cache supplies without hashing again.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/phlash/azure-sync/internal/fingerprint"
)

// key identifies one cache entry.
type key struct {
	Path  string
	Size  uint64
	Mtime float64
}

// Cache is a process-lifetime, file-backed fingerprint cache. Safe for
// concurrent use: lookups and stores happen from the orchestrator's
// chunk function, which the reconciler calls per file.
type Cache struct {
	mu      sync.Mutex
	path    string
	entries map[key]fingerprint.Sequence
	dirty   bool
}

// Load reads path if it exists, returning an empty cache if it does
// not (a missing cache file is not an error — every entry just misses).
func Load(path string) (*Cache, error) {
	c := &Cache{path: path, entries: make(map[key]fingerprint.Sequence)}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: open %q: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("cache: gzip reader %q: %w", path, err)
	}
	defer gz.Close()

	var raw []entry
	if err := msgpack.NewDecoder(gz).Decode(&raw); err != nil {
		return nil, fmt.Errorf("cache: decode %q: %w", path, err)
	}
	for _, e := range raw {
		c.entries[key{Path: e.Path, Size: e.Size, Mtime: e.Mtime}] = e.Chunks
	}
	return c, nil
}

type entry struct {
	Path   string
	Size   uint64
	Mtime  float64
	Chunks fingerprint.Sequence
}

// Lookup returns the cached fingerprint sequence for (path, size,
// mtime), if present.
func (c *Cache) Lookup(path string, size uint64, mtime float64) (fingerprint.Sequence, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq, ok := c.entries[key{Path: path, Size: size, Mtime: mtime}]
	return seq, ok
}

// Put records a freshly computed fingerprint sequence.
func (c *Cache) Put(path string, size uint64, mtime float64, seq fingerprint.Sequence) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key{Path: path, Size: size, Mtime: mtime}] = seq
	c.dirty = true
}

// Save writes the cache to disk if anything changed since Load. A
// save failure is logged by the caller, not fatal to the run — the
// cache is a performance optimization, not a correctness requirement.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}

	raw := make([]entry, 0, len(c.entries))
	for k, v := range c.entries {
		raw = append(raw, entry{Path: k.Path, Size: k.Size, Mtime: k.Mtime, Chunks: v})
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cache: mkdir %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".azure-sync-cache-*.tmp")
	if err != nil {
		return fmt.Errorf("cache: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	gz := gzip.NewWriter(tmp)
	if err := msgpack.NewEncoder(gz).Encode(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: encode: %w", err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: gzip close: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("cache: rename: %w", err)
	}
	return nil
}
