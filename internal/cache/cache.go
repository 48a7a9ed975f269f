// Package cache implements a content-addressed, concurrency-safe store of
// validated Transformers and their Generated Tests, persisted under
// cache_root. An in-memory index is guarded by a mutex, loaded once and
// written back to disk, with a two-layer store/tests body-file layout and
// atomic temp-file-then-rename writes for every mutation, not just the
// index.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"scriptforge/internal/logging"
	"scriptforge/internal/model"
)

// indexFile is the on-disk shape of index.json.
type indexFile struct {
	Version int                         `json:"version"`
	Entries map[string]model.CacheEntry `json:"entries"`
}

const indexFileVersion = 1

// Cache is the on-disk transformer cache. Safe for concurrent Lookup/Store
// from many goroutines; all body-file and index writes go through
// temp-file-then-rename so a reader never observes a partially written
// entry.
type Cache struct {
	root string

	mu      sync.Mutex
	entries map[string]model.CacheEntry
}

// Open loads (or initializes) a Cache rooted at root, creating the
// store/tests directory tree if it does not already exist.
func Open(root string) (*Cache, error) {
	if root == "" {
		return nil, fmt.Errorf("cache: root path required")
	}
	for _, sub := range []string{"store", "tests"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0755); err != nil {
			return nil, fmt.Errorf("cache: create %s dir: %w", sub, err)
		}
	}

	c := &Cache{root: root, entries: make(map[string]model.CacheEntry)}

	data, err := os.ReadFile(filepath.Join(root, "index.json"))
	if err != nil {
		if os.IsNotExist(err) {
			logging.CacheDebug("cache: no existing index at %s, starting empty", root)
			return c, nil
		}
		return nil, fmt.Errorf("cache: read index: %w", err)
	}

	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		logging.Get(logging.CategoryCache).Warn("cache: corrupt index.json, starting fresh: %v", err)
		return c, nil
	}
	if idx.Entries != nil {
		c.entries = idx.Entries
	}
	logging.Cache("cache: loaded %d entries from %s", len(c.entries), root)
	return c, nil
}

// Lookup looks up fingerprint. A miss is reported by ok=false rather than
// an error - both "never stored" and "body file transiently absent" degrade
// to a cache miss so the caller regenerates.
func (c *Cache) Lookup(fingerprint string) (model.CacheEntry, model.Transformer, model.GeneratedTest, bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[fingerprint]
	c.mu.Unlock()
	if !ok {
		return model.CacheEntry{}, model.Transformer{}, model.GeneratedTest{}, false, nil
	}

	progPath := filepath.Join(c.root, entry.ProgPath())
	progBytes, err := os.ReadFile(progPath)
	if err != nil {
		if os.IsNotExist(err) {
			logging.CacheDebug("cache: entry %s present in index but %s missing, treating as miss", fingerprint, progPath)
			return model.CacheEntry{}, model.Transformer{}, model.GeneratedTest{}, false, nil
		}
		return model.CacheEntry{}, model.Transformer{}, model.GeneratedTest{}, false, fmt.Errorf("cache: read transformer: %w", err)
	}

	testPath := filepath.Join(c.root, entry.TestPath())
	testBytes, err := os.ReadFile(testPath)
	if err != nil {
		if os.IsNotExist(err) {
			logging.CacheDebug("cache: entry %s present in index but %s missing, treating as miss", fingerprint, testPath)
			return model.CacheEntry{}, model.Transformer{}, model.GeneratedTest{}, false, nil
		}
		return model.CacheEntry{}, model.Transformer{}, model.GeneratedTest{}, false, fmt.Errorf("cache: read test: %w", err)
	}

	transformer := model.Transformer{
		Source:          string(progBytes),
		Mode:            entry.Provenance.GeneratorMode,
		Language:        entry.Language,
		FunctionName:    entry.FunctionName,
		RefactorAttempt: entry.Provenance.RefactorAttempts,
	}
	test := model.GeneratedTest{Source: string(testBytes), FunctionName: entry.FunctionName, Language: entry.Language}

	c.touch(fingerprint)
	logging.Cache("cache hit for %s (%s), hit_count=%d", entry.FunctionName, fingerprint, entry.HitCount+1)
	return entry, transformer, test, true, nil
}

// touch bumps hit_count/last_used_at for a looked-up entry and persists the
// index. Failure to persist the touch is logged but non-fatal - it is
// bookkeeping, not correctness-bearing (the entry itself is unaffected).
func (c *Cache) touch(fingerprint string) {
	c.mu.Lock()
	entry, ok := c.entries[fingerprint]
	if !ok {
		c.mu.Unlock()
		return
	}
	entry.HitCount++
	entry.LastUsedAt = time.Now()
	c.entries[fingerprint] = entry
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if err := writeIndexAtomic(c.root, snapshot); err != nil {
		logging.Get(logging.CategoryCache).Warn("cache: failed to persist hit-count touch for %s: %v", fingerprint, err)
	}
}

// Store writes both body files via temp-then-rename, then commits the
// index under the same guarantee. Two workers racing to store the same
// content-addressed, deterministic fingerprint is harmless - any winner is
// equally valid.
func (c *Cache) Store(fingerprint string, transformer model.Transformer, test model.GeneratedTest, provenance model.Provenance) (model.CacheEntry, error) {
	short := fingerprint
	if len(short) > 8 {
		short = fingerprint[:8]
	}

	entry := model.CacheEntry{
		Fingerprint:      fingerprint,
		Language:         transformer.Language,
		FunctionName:     transformer.FunctionName,
		ShortHash:        short,
		Provenance:       provenance,
		CreatedAt:        time.Now(),
		LastUsedAt:       time.Now(),
		ValidationStatus: "valid",
	}

	progPath := filepath.Join(c.root, entry.ProgPath())
	testPath := filepath.Join(c.root, entry.TestPath())

	if err := writeFileAtomic(progPath, []byte(transformer.Source)); err != nil {
		return model.CacheEntry{}, fmt.Errorf("cache: write transformer body: %w", err)
	}
	if err := writeFileAtomic(testPath, []byte(test.Source)); err != nil {
		os.Remove(progPath)
		return model.CacheEntry{}, fmt.Errorf("cache: write test body: %w", err)
	}

	c.mu.Lock()
	c.entries[fingerprint] = entry
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if err := writeIndexAtomic(c.root, snapshot); err != nil {
		return model.CacheEntry{}, fmt.Errorf("cache: write index: %w", err)
	}

	logging.Cache("cache store: %s (%s) fingerprint=%s mode=%s", entry.FunctionName, entry.Language, fingerprint, provenance.GeneratorMode)
	return entry, nil
}

func (c *Cache) snapshotLocked() map[string]model.CacheEntry {
	cp := make(map[string]model.CacheEntry, len(c.entries))
	for k, v := range c.entries {
		cp[k] = v
	}
	return cp
}

// writeFileAtomic writes data to path by first writing to a sibling temp
// file and renaming it into place, so a reader never observes a partial
// write.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func writeIndexAtomic(root string, entries map[string]model.CacheEntry) error {
	idx := indexFile{Version: indexFileVersion, Entries: entries}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(root, "index.json"), data)
}
