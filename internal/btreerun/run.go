package btreerun

import (
	"github.com/intellect4all/kvengine/internal/page"
	"github.com/intellect4all/kvengine/internal/pagecache"
)

// source abstracts over the two on-disk layouts a B-tree run can take:
// a single combined file (internal pages then leaves), or a split pair
// of leaf/internal files (the LSM backend's per-level runs).
type source interface {
	// readGlobalPage returns the page at the given 0-based global index
	// and whether it is a leaf page.
	readGlobalPage(cache *pagecache.Cache, idx int64) ([]page.Record, bool, error)
	totalPages() int64
}

// combinedSource is a single file containing internal pages followed by
// leaves; leaf vs. internal is told apart by content (the arr[0]==arr[1]
// sentinel), per spec.md §3.
type combinedSource struct {
	path string
}

func (s combinedSource) readGlobalPage(cache *pagecache.Cache, idx int64) ([]page.Record, bool, error) {
	records, err := cache.FindPage(s.path, idx*page.Size, page.ReadPage)
	if err != nil {
		return nil, false, err
	}
	isLeaf := !(len(records) > 1 && records[0].Key == records[1].Key)
	return records, isLeaf, nil
}

func (s combinedSource) totalPages() int64 {
	n, err := page.PageCount(s.path)
	if err != nil {
		return 0
	}
	return n
}

// splitSource is the two-file LSM layout: global page indices below
// internalPageCount address the internal file, the rest address the
// leaf file (offset back down to that file's own local index space).
type splitSource struct {
	leafPath, internalPath string
	internalPageCount      int64
}

func (s splitSource) readGlobalPage(cache *pagecache.Cache, idx int64) ([]page.Record, bool, error) {
	if idx < s.internalPageCount {
		records, err := cache.FindPage(s.internalPath, idx*page.Size, page.ReadPage)
		return records, false, err
	}
	records, err := cache.FindPage(s.leafPath, (idx-s.internalPageCount)*page.Size, page.ReadPage)
	return records, true, err
}

func (s splitSource) totalPages() int64 {
	leafPages, err := page.PageCount(s.leafPath)
	if err != nil {
		return s.internalPageCount
	}
	return s.internalPageCount + leafPages
}

// Run is a handle onto one on-disk B-tree run, ready for point gets and
// range scans through the page cache.
type Run struct {
	src source
}

// OpenCombined opens a single-file B-tree run (the append-only-style
// "b_tree" storage backend's flush output).
func OpenCombined(path string) *Run {
	return &Run{src: combinedSource{path: path}}
}

// OpenSplit opens a two-file B-tree run (an LSM level's leaf/internal
// file pair). internalPageCount is the value BuildInternalFile returned
// when the run was constructed.
func OpenSplit(leafPath, internalPath string, internalPageCount int64) *Run {
	return &Run{src: splitSource{leafPath: leafPath, internalPath: internalPath, internalPageCount: internalPageCount}}
}

// binarySearchInternalSeKey returns the greatest index in 1..len(arr)-1
// whose key is <= target, or 0 if none qualifies (the leftmost child).
func binarySearchInternalSeKey(arr []page.Record, target int64) int {
	left, right := 1, len(arr)-1
	found := -1
loop:
	for left <= right {
		mid := left + (right-left)/2
		switch {
		case arr[mid].Key == target:
			found = mid
			break loop
		case arr[mid].Key < target:
			found = mid
			left = mid + 1
		default:
			right = mid - 1
		}
	}
	if found == -1 {
		return 0
	}
	return found
}

// binarySearchStartIndex returns the index of the smallest record with
// key >= target in arr, or -1 if none exists.
func binarySearchStartIndex(arr []page.Record, target int64) int {
	found := -1
	left, right := 0, len(arr)-1
	for left <= right {
		mid := left + (right-left)/2
		if arr[mid].Key >= target {
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

// descendToLeaf walks from the root following the child pointer selected
// at each internal page for key, returning the leaf page's global index
// and its decoded records.
func descendToLeaf(cache *pagecache.Cache, src source, key int64) (int64, []page.Record, error) {
	idx := int64(0)
	for {
		records, isLeaf, err := src.readGlobalPage(cache, idx)
		if err != nil {
			return 0, nil, err
		}
		if isLeaf {
			return idx, records, nil
		}
		arrIdx := binarySearchInternalSeKey(records, key)
		idx = records[arrIdx].Value
	}
}

// Get returns the value stored for key in this run, if present.
func (r *Run) Get(cache *pagecache.Cache, key int64) (int64, bool, error) {
	_, leaf, err := descendToLeaf(cache, r.src, key)
	if err != nil {
		return 0, false, err
	}
	idx := binarySearchStartIndex(leaf, key)
	if idx < 0 || leaf[idx].Key != key {
		return 0, false, nil
	}
	return leaf[idx].Value, true, nil
}

// Scan walks every leaf page from the first key >= lo through the last
// key <= hi, inserting records into out (insert-if-absent).
func (r *Run) Scan(cache *pagecache.Cache, lo, hi int64, out map[int64]int64) error {
	if lo > hi {
		return nil
	}
	pageIdx, leaf, err := descendToLeaf(cache, r.src, lo)
	if err != nil {
		return err
	}
	startIdx := binarySearchStartIndex(leaf, lo)
	if startIdx < 0 {
		// Every key in this leaf is < lo; the first key >= lo, if any,
		// opens the next leaf page.
		pageIdx++
		startIdx = 0
	}

	total := r.src.totalPages()
	arrIdx := startIdx
	for pageIdx < total {
		records, _, err := r.src.readGlobalPage(cache, pageIdx)
		if err != nil {
			return err
		}
		for arrIdx < len(records) && records[arrIdx].Key <= hi {
			if _, present := out[records[arrIdx].Key]; !present {
				out[records[arrIdx].Key] = records[arrIdx].Value
			}
			arrIdx++
		}
		if arrIdx != len(records) {
			break
		}
		arrIdx = 0
		pageIdx++
	}
	return nil
}
