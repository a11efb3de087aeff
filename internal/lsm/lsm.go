// Package lsm implements the size-tiered LSM tree storage backend: every
// memtable drain becomes a new level-1 run, and a binary-counter merge
// schedule folds pairs of same-level runs upward, halving the number of
// runs a lookup must probe as the tree grows. Grounded on the original
// Rust LSMTree (storage/lsm.rs: flush, merge_ssts, get, scan), composed
// with internal/btreerun for each level's on-disk B-tree and
// internal/bloom for per-level filters.
package lsm

import (
	"fmt"
	"math/bits"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/intellect4all/kvengine/internal/bloom"
	"github.com/intellect4all/kvengine/internal/btreerun"
	"github.com/intellect4all/kvengine/internal/page"
	"github.com/intellect4all/kvengine/internal/pagecache"
)

// maxLevels bounds the level array; 51 levels accommodates a tree_size up
// to 2^50 flushes, mirroring the original's fixed `vec![None; 51]`.
const maxLevels = 51

// Config configures one LSM tree instance.
type Config struct {
	Dir            string
	BufferPoolSize int
	MemtableSize   int
}

// DefaultConfig returns sensible defaults rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		BufferPoolSize: 1024,
		MemtableSize:   4096,
	}
}

// Tree is a size-tiered LSM tree backend for one data directory.
type Tree struct {
	dir          string
	memtableSize int
	cache        *pagecache.Cache
	treeSize     uint32
	filters      [maxLevels]*bloom.Bitmap
	log          *zap.SugaredLogger
}

// Open creates (if necessary) cfg.Dir and returns a fresh Tree. The level
// counter always starts at zero: crash recovery beyond flushed-run
// durability is out of scope, matching the original's always-fresh
// LSMTree::new.
func Open(cfg Config, log *zap.SugaredLogger) (*Tree, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("lsm: create dir %s: %w", cfg.Dir, err)
	}
	return &Tree{
		dir:          cfg.Dir,
		memtableSize: cfg.MemtableSize,
		cache:        pagecache.New(cfg.BufferPoolSize, log),
		log:          log,
	}, nil
}

func (t *Tree) leafPath(level int, n uint32) string {
	return filepath.Join(t.dir, fmt.Sprintf("output_leaf_%d_%d.bin", level, n))
}

func (t *Tree) internalPath(level int, n uint32) string {
	return filepath.Join(t.dir, fmt.Sprintf("output_internal_%d_%d.bin", level, n))
}

func (t *Tree) filterPath(level int, n uint32) string {
	return filepath.Join(t.dir, fmt.Sprintf("filter_%d_%d.bin", level, n))
}

// levelFileCount returns the tree_size value a level's current run file
// was named with: treeSize rounded down to a multiple of 2^(level-1).
func levelFileCount(treeSize uint32, level int) uint32 {
	step := uint32(1) << uint(level-1)
	return (treeSize / step) * step
}

// Flush writes records (sorted ascending by key) as a new level-1 run,
// builds its B-tree index and Bloom filter, then merges runs upward
// following the binary-counter schedule.
func (t *Tree) Flush(records []page.Record) error {
	if len(records) == 0 {
		return nil
	}
	t.treeSize++

	leafPath := t.leafPath(1, t.treeSize)
	internalPath := t.internalPath(1, t.treeSize)

	if err := page.WriteRun(leafPath, records); err != nil {
		return err
	}
	internalPageCount, err := btreerun.BuildInternalFile(leafPath, internalPath, t.cache)
	if err != nil {
		return err
	}

	filter := bloom.New(uint64(bloom.BitsPerEntry * len(records)))
	for _, r := range records {
		filter.Insert(r.Key)
	}
	t.filters[1] = filter
	if err := bloom.Serialize(t.filterPath(1, t.treeSize), filter, uint64(internalPageCount)); err != nil {
		return err
	}

	level := 1
	for t.treeSize&(1<<uint(level-1)) == 0 {
		if err := t.mergeLevel(level); err != nil {
			return err
		}
		level++
	}
	return nil
}

// mergeLevel folds the two level `level` runs (the pair that just
// completed a pair under the binary-counter schedule) into one new
// level+1 run, deleting the inputs and their filter sidecars.
func (t *Tree) mergeLevel(level int) error {
	firstN := t.treeSize - (1 << uint(level-1))
	secondN := t.treeSize

	firstLeaf, firstInternal := t.leafPath(level, firstN), t.internalPath(level, firstN)
	secondLeaf, secondInternal := t.leafPath(level, secondN), t.internalPath(level, secondN)

	outLevel := level + 1
	outLeaf := t.leafPath(outLevel, t.treeSize)
	outInternal := t.internalPath(outLevel, t.treeSize)

	newFilter := bloom.New(uint64(1<<uint(level)) * uint64(t.memtableSize) * uint64(bloom.BitsPerEntry))
	if err := mergeLeaves(t.cache, firstLeaf, secondLeaf, outLeaf, newFilter); err != nil {
		return err
	}

	internalPageCount, err := btreerun.BuildInternalFile(outLeaf, outInternal, t.cache)
	if err != nil {
		return err
	}
	if err := bloom.Serialize(t.filterPath(outLevel, t.treeSize), newFilter, uint64(internalPageCount)); err != nil {
		return err
	}

	for _, p := range []string{firstLeaf, firstInternal, secondLeaf, secondInternal,
		t.filterPath(level, firstN), t.filterPath(level, secondN)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			t.log.Fatalf("lsm: removing merged input %s: %v", p, err)
		}
	}

	t.filters[level] = nil
	t.filters[outLevel] = newFilter
	return nil
}

// mergeLeaves streams firstPath and secondPath (each sorted ascending)
// into outPath in sorted order, buffering 256 records per output page;
// on an equal key the record from secondPath (the newer run) wins.
// Every emitted key is also inserted into filter.
func mergeLeaves(cache *pagecache.Cache, firstPath, secondPath, outPath string, filter *bloom.Bitmap) error {
	firstTotal, err := page.PageCount(firstPath)
	if err != nil {
		return err
	}
	secondTotal, err := page.PageCount(secondPath)
	if err != nil {
		return err
	}

	var firstIdx, secondIdx int64
	first, err := cache.FindPage(firstPath, firstIdx*page.Size, page.ReadPage)
	if err != nil {
		return err
	}
	second, err := cache.FindPage(secondPath, secondIdx*page.Size, page.ReadPage)
	if err != nil {
		return err
	}

	var out []page.Record
	emit := func(r page.Record) error {
		out = append(out, r)
		filter.Insert(r.Key)
		if len(out) == page.MaxRecordsPerPage {
			if err := page.WriteRun(outPath, out); err != nil {
				return err
			}
			out = out[:0]
		}
		return nil
	}
	refillFirst := func() error {
		if len(first) > 0 {
			return nil
		}
		for len(first) == 0 {
			firstIdx++
			if firstIdx == firstTotal {
				return nil
			}
			var err error
			first, err = cache.FindPage(firstPath, firstIdx*page.Size, page.ReadPage)
			if err != nil {
				return err
			}
		}
		return nil
	}
	refillSecond := func() error {
		if len(second) > 0 {
			return nil
		}
		for len(second) == 0 {
			secondIdx++
			if secondIdx == secondTotal {
				return nil
			}
			var err error
			second, err = cache.FindPage(secondPath, secondIdx*page.Size, page.ReadPage)
			if err != nil {
				return err
			}
		}
		return nil
	}

	for firstIdx < firstTotal && secondIdx < secondTotal {
		if err := refillFirst(); err != nil {
			return err
		}
		if firstIdx == firstTotal {
			break
		}
		if err := refillSecond(); err != nil {
			return err
		}
		if secondIdx == secondTotal {
			break
		}

		a, b := first[0], second[0]
		switch {
		case a.Key < b.Key:
			if err := emit(a); err != nil {
				return err
			}
			first = first[1:]
		case a.Key > b.Key:
			if err := emit(b); err != nil {
				return err
			}
			second = second[1:]
		default:
			if err := emit(b); err != nil {
				return err
			}
			first = first[1:]
			second = second[1:]
		}
	}

	for firstIdx < firstTotal {
		if err := refillFirst(); err != nil {
			return err
		}
		if firstIdx == firstTotal {
			break
		}
		if err := emit(first[0]); err != nil {
			return err
		}
		first = first[1:]
	}
	for secondIdx < secondTotal {
		if err := refillSecond(); err != nil {
			return err
		}
		if secondIdx == secondTotal {
			break
		}
		if err := emit(second[0]); err != nil {
			return err
		}
		second = second[1:]
	}

	if len(out) > 0 {
		if err := page.WriteRun(outPath, out); err != nil {
			return err
		}
	}
	return nil
}

// filterForLevel returns the Bloom filter for level, lazily loading it
// from its sidecar file if it isn't already held in memory. Open starts
// treeSize at zero, so a reopened Tree never probes the levels, or reads
// the sidecars, of an earlier process. A nil return means no filter is
// available and the level must always be probed directly.
func (t *Tree) filterForLevel(level int, n uint32) *bloom.Bitmap {
	if t.filters[level] != nil {
		return t.filters[level]
	}
	f, _, err := bloom.Deserialize(t.filterPath(level, n))
	if err != nil {
		return nil
	}
	t.filters[level] = f
	return f
}

// activeLevels returns the highest level number that could possibly be
// populated for treeSize, per the binary-counter invariant: level L is
// present iff bit (L-1) of treeSize is set.
func activeLevels(treeSize uint32) int {
	return bits.Len32(treeSize)
}

// Get returns the value stored for key, checking levels from newest
// (level 1) to oldest, short-circuiting on a level's Bloom filter when
// available.
func (t *Tree) Get(key int64) (int64, bool, error) {
	if t.treeSize == 0 {
		return 0, false, nil
	}
	for level := 1; level <= activeLevels(t.treeSize); level++ {
		if t.treeSize&(1<<uint(level-1)) == 0 {
			continue
		}
		n := levelFileCount(t.treeSize, level)
		if filter := t.filterForLevel(level, n); filter != nil && !filter.Check(key) {
			continue
		}

		internalPath := t.internalPath(level, n)
		internalPageCount, err := page.PageCount(internalPath)
		if err != nil {
			return 0, false, err
		}
		run := btreerun.OpenSplit(t.leafPath(level, n), internalPath, internalPageCount)
		v, ok, err := run.Get(t.cache, key)
		if err != nil {
			return 0, false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return 0, false, nil
}

// Scan merges matching records from every level, newest (level 1) first,
// into out (insert-if-absent, so the newest writer of a key wins). No
// Bloom filter short-circuit is applied: a scan must inspect every
// candidate page regardless of filter state, matching the original.
func (t *Tree) Scan(lo, hi int64, out map[int64]int64) error {
	if t.treeSize == 0 || lo > hi {
		return nil
	}
	for level := 1; level <= activeLevels(t.treeSize); level++ {
		if t.treeSize&(1<<uint(level-1)) == 0 {
			continue
		}
		n := levelFileCount(t.treeSize, level)
		internalPath := t.internalPath(level, n)
		internalPageCount, err := page.PageCount(internalPath)
		if err != nil {
			return err
		}
		run := btreerun.OpenSplit(t.leafPath(level, n), internalPath, internalPageCount)
		if err := run.Scan(t.cache, lo, hi, out); err != nil {
			return err
		}
	}
	return nil
}
