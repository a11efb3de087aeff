package btreerun

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/intellect4all/kvengine/internal/page"
	"github.com/intellect4all/kvengine/internal/pagecache"
)

// Backend is the static-B-tree storage backend for one database
// directory: every memtable drain becomes one more immutable combined
// B-tree run file, consulted newest-first. Grounded on the original Rust
// BTree (storage/mod.rs) and its get_b_tree_ssts/scan_b_tree_ssts
// (storage/btree.rs).
type Backend struct {
	dir   string
	cache *pagecache.Cache
	count int
}

// Open scans dir for existing output_N.bin run files so a restarted
// process resumes flush numbering where it left off.
func Open(dir string, cache *pagecache.Cache) (*Backend, error) {
	count, err := countRuns(dir)
	if err != nil {
		return nil, err
	}
	return &Backend{dir: dir, cache: cache, count: count}, nil
}

func countRuns(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("btreerun: read dir %s: %w", dir, err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "output_") && strings.HasSuffix(e.Name(), ".bin") {
			n++
		}
	}
	return n, nil
}

func (b *Backend) runPath(i int) string {
	return filepath.Join(b.dir, fmt.Sprintf("output_%d.bin", i))
}

func (b *Backend) runPathsNewestFirst() []string {
	paths := make([]string, b.count)
	for i := 0; i < b.count; i++ {
		paths[i] = b.runPath(b.count - 1 - i)
	}
	return paths
}

// Flush writes records (already sorted ascending by key) as the next
// combined B-tree run.
func (b *Backend) Flush(records []page.Record) error {
	if len(records) == 0 {
		return nil
	}
	path := b.runPath(b.count)
	if err := BuildCombined(path, records); err != nil {
		return err
	}
	b.count++
	return nil
}

// Get searches every run, newest first, returning the first hit.
func (b *Backend) Get(key int64) (int64, bool, error) {
	for _, path := range b.runPathsNewestFirst() {
		v, ok, err := OpenCombined(path).Get(b.cache, key)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return 0, false, nil
}

// Scan merges matching records from every run, newest first, into out,
// stopping early once out holds as many entries as the approximate
// (tombstone-unaware) span of the range — the same accepted heuristic
// the append-only backend uses.
func (b *Backend) Scan(lo, hi int64, out map[int64]int64) error {
	if lo > hi {
		return nil
	}
	approxUpperBound := int(hi - lo)
	for _, path := range b.runPathsNewestFirst() {
		if err := OpenCombined(path).Scan(b.cache, lo, hi, out); err != nil {
			return err
		}
		if len(out) == approxUpperBound {
			break
		}
	}
	return nil
}
