// Package appendonly implements the append-only sorted-run backend:
// every memtable drain becomes one more immutable file of sorted pages,
// consulted newest-first. Grounded on the original Rust AppendOnlyLog
// (storage/mod.rs) and its serde.rs binary-search/scan helpers.
package appendonly

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/intellect4all/kvengine/internal/page"
	"github.com/intellect4all/kvengine/internal/pagecache"
)

// Backend is the append-only storage backend for one database directory.
type Backend struct {
	dir   string
	cache *pagecache.Cache
	count int // number of flushed run files so far
}

// Open scans dir for existing output_N.bin run files (so a restarted
// process resumes flush numbering where it left off) and returns a
// ready Backend.
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
		return 0, fmt.Errorf("appendonly: read dir %s: %w", dir, err)
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

// runPathsNewestFirst returns every flushed run's path, newest file first.
func (b *Backend) runPathsNewestFirst() []string {
	paths := make([]string, b.count)
	for i := 0; i < b.count; i++ {
		paths[i] = b.runPath(b.count - 1 - i)
	}
	return paths
}

// Flush writes records (already sorted ascending by key) as the next run.
func (b *Backend) Flush(records []page.Record) error {
	path := b.runPath(b.count)
	if err := page.WriteRun(path, records); err != nil {
		return err
	}
	b.count++
	return nil
}

func (b *Backend) readPage(path string, offset int64) ([]page.Record, error) {
	return b.cache.FindPage(path, offset, page.ReadPage)
}

// Get searches every run, newest first, returning the first hit.
func (b *Backend) Get(key int64) (int64, bool, error) {
	for _, path := range b.runPathsNewestFirst() {
		v, found, err := b.getInFile(path, key)
		if err != nil {
			return 0, false, err
		}
		if found {
			return v, true, nil
		}
	}
	return 0, false, nil
}

func (b *Backend) getInFile(path string, key int64) (int64, bool, error) {
	totalPages, err := page.PageCount(path)
	if err != nil {
		return 0, false, err
	}
	if totalPages == 0 {
		return 0, false, nil
	}

	left, right := int64(0), totalPages-1
	for left <= right {
		mid := left + (right-left)/2
		records, err := b.readPage(path, mid*page.Size)
		if err != nil {
			return 0, false, err
		}
		first, last := records[0].Key, records[len(records)-1].Key
		switch {
		case first <= key && key <= last:
			return binarySearchRecords(records, key)
		case first > key:
			if mid == 0 {
				return 0, false, nil
			}
			right = mid - 1
		default:
			left = mid + 1
		}
	}
	return 0, false, nil
}

func binarySearchRecords(records []page.Record, key int64) (int64, bool, error) {
	left, right := 0, len(records)-1
	for left <= right {
		mid := left + (right-left)/2
		switch {
		case records[mid].Key == key:
			return records[mid].Value, true, nil
		case records[mid].Key > key:
			right = mid - 1
		default:
			left = mid + 1
		}
	}
	return 0, false, nil
}

// binarySearchStartIndex returns the index of the smallest record with
// key >= target, or -1 if none exists.
func binarySearchStartIndex(records []page.Record, target int64) int {
	found := -1
	left, right := 0, len(records)-1
	for left <= right {
		mid := left + (right-left)/2
		if records[mid].Key >= target {
			found = mid
			if mid == left {
				break
			}
			right = mid - 1
		} else {
			left = mid + 1
		}
	}
	return found
}

// Scan merges matching records from every run, newest first, into out
// (insert-if-absent, so the first writer of a key wins).
func (b *Backend) Scan(lo, hi int64, out map[int64]int64) error {
	if lo > hi {
		return nil
	}
	approxUpperBound := int(hi - lo)
	for _, path := range b.runPathsNewestFirst() {
		if err := b.scanFile(path, lo, hi, out); err != nil {
			return err
		}
		if len(out) == approxUpperBound {
			break
		}
	}
	return nil
}

func (b *Backend) scanFile(path string, lo, hi int64, out map[int64]int64) error {
	totalPages, err := page.PageCount(path)
	if err != nil {
		return err
	}
	if totalPages == 0 {
		return nil
	}

	pageIdx, arrIdx, err := b.startIndex(path, totalPages, lo, hi)
	if err != nil || pageIdx < 0 {
		return err
	}

	for pageIdx < totalPages {
		records, err := b.readPage(path, pageIdx*page.Size)
		if err != nil {
			return err
		}
		for arrIdx < len(records) && records[arrIdx].Key <= hi {
			if _, present := out[records[arrIdx].Key]; !present {
				out[records[arrIdx].Key] = records[arrIdx].Value
			}
			arrIdx++
		}
		arrIdx = 0
		pageIdx++
	}
	return nil
}

// startIndex locates the (page, in-page-index) of the first key >= lo
// within the file, or (-1, -1) if the range doesn't intersect it.
func (b *Backend) startIndex(path string, totalPages int64, lo, hi int64) (int64, int, error) {
	first, err := b.readPage(path, 0)
	if err != nil {
		return -1, -1, err
	}
	last, err := b.readPage(path, (totalPages-1)*page.Size)
	if err != nil {
		return -1, -1, err
	}

	if first[0].Key <= lo && lo <= last[len(last)-1].Key {
		left, right := int64(0), totalPages-1
		var records []page.Record
		for left <= right {
			mid := left + (right-left)/2
			records, err = b.readPage(path, mid*page.Size)
			if err != nil {
				return -1, -1, err
			}
			switch {
			case records[0].Key <= lo && lo <= records[len(records)-1].Key:
				idx := binarySearchStartIndex(records, lo)
				return mid, idx, nil
			case lo < records[0].Key:
				right = mid - 1
			default:
				left = mid + 1
			}
		}
		// lo falls between two pages: the first key >= lo opens page left.
		return left, 0, nil
	}
	if lo < first[0].Key && first[0].Key <= hi {
		return 0, 0, nil
	}
	return -1, -1, nil
}
