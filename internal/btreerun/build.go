// Package btreerun implements the static B-tree sorted run: flushing a
// sorted record slice into an implicit B-tree (internal index pages over
// a sorted leaf region) and searching/scanning it afterward. Grounded on
// the original Rust btree.rs (convert_sorted_arr_to_b_tree_arr_and_serialize,
// binary_search_internal_se_key, search_b_tree_sst, scan_b_tree_sst) and
// part3btree.rs (the split leaf/internal-file variant the LSM backend uses).
package btreerun

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/intellect4all/kvengine/internal/page"
	"github.com/intellect4all/kvengine/internal/pagecache"
)

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// buildInternalLevels computes the internal index levels above a region
// of totalLeafPages leaf pages, given the first key of every leaf page
// except the first (leafFirstKeys). Levels are returned bottom-first
// (levels[0] sits directly above the leaves; the last entry is the root).
func buildInternalLevels(leafFirstKeys []int64, totalLeafPages int) [][][]int64 {
	numPtrs := totalLeafPages
	candidates := leafFirstKeys

	var levels [][][]int64
	for len(candidates) > 0 {
		currLevelNumNodes := ceilDiv(numPtrs, page.MaxRecordsPerPage)
		keysPerNode := (numPtrs - 2*currLevelNumNodes) / currLevelNumNodes
		excessKeys := (numPtrs - 2*currLevelNumNodes) % currLevelNumNodes

		var level [][]int64
		var next []int64
		i := 0
		nodeIdx := 0
		for i < len(candidates) {
			nKeys := 1 + keysPerNode
			if nodeIdx < excessKeys {
				nKeys++
			}
			node := make([]int64, 0, nKeys)
			for j := 0; j < nKeys && i < len(candidates); j++ {
				node = append(node, candidates[i])
				i++
			}
			level = append(level, node)

			if i < len(candidates) {
				next = append(next, candidates[i])
				i++
			}
			nodeIdx++
		}

		levels = append(levels, level)
		numPtrs = len(level)
		candidates = next
	}
	return levels
}

// serializePages lays the internal levels out top-down (root first, then
// its children left to right, ...) assigning each node page a global
// page index as if the leaf region immediately followed every internal
// page. It returns one []page.Record per internal page, and the total
// internal page count.
func serializePages(levels [][][]int64) ([][]page.Record, int) {
	pagesInFront := 0
	var pages [][]page.Record

	for li := len(levels) - 1; li >= 0; li-- {
		level := levels[li]
		numOffsetPages := pagesInFront + len(level)

		for _, node := range level {
			pageRecords := make([]page.Record, 0, len(node)+1)
			pageRecords = append(pageRecords, page.Record{Key: node[0], Value: int64(numOffsetPages)})
			numOffsetPages++
			for _, k := range node {
				pageRecords = append(pageRecords, page.Record{Key: k, Value: int64(numOffsetPages)})
				numOffsetPages++
			}
			pages = append(pages, pageRecords)
			pagesInFront++
		}
	}
	return pages, pagesInFront
}

// BuildCombined writes records (sorted ascending by key) as a single
// B-tree run file: internal index pages first, then the sorted leaves.
func BuildCombined(path string, records []page.Record) error {
	if len(records) == 0 {
		return nil
	}

	totalLeafPages := ceilDiv(len(records), page.MaxRecordsPerPage)
	leafFirstKeys := make([]int64, 0, totalLeafPages-1)
	for i := 1; i < totalLeafPages; i++ {
		leafFirstKeys = append(leafFirstKeys, records[i*page.MaxRecordsPerPage].Key)
	}

	levels := buildInternalLevels(leafFirstKeys, totalLeafPages)
	pages, _ := serializePages(levels)

	tmp, err := writePagesToTempFile(filepath.Dir(path), pages)
	if err != nil {
		return err
	}
	if len(pages) > 0 {
		if err := appendFile(path, tmp); err != nil {
			return err
		}
	}
	os.Remove(tmp)

	return page.WriteRun(path, records)
}

// BuildInternalFile reads the already-written leaf file at leafPath and
// writes the corresponding internal index file at internalPath (the
// two-file layout the LSM backend's per-level runs use). It returns the
// internal file's page count, needed to translate global page indices
// into leaf-file-local ones when reading the run back.
func BuildInternalFile(leafPath, internalPath string, cache *pagecache.Cache) (int64, error) {
	totalLeafPages, err := page.PageCount(leafPath)
	if err != nil {
		return 0, err
	}

	leafFirstKeys := make([]int64, 0, totalLeafPages)
	for i := int64(1); i < totalLeafPages; i++ {
		records, err := cache.FindPage(leafPath, i*page.Size, page.ReadPage)
		if err != nil {
			return 0, err
		}
		leafFirstKeys = append(leafFirstKeys, records[0].Key)
	}

	levels := buildInternalLevels(leafFirstKeys, int(totalLeafPages))
	pages, total := serializePages(levels)
	if len(pages) == 0 {
		// A single-leaf run has no internal pages; still create the
		// (empty) internal file so readers can stat it.
		f, err := os.OpenFile(internalPath, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return 0, fmt.Errorf("btreerun: create %s: %w", internalPath, err)
		}
		return 0, f.Close()
	}

	tmp, err := writePagesToTempFile(filepath.Dir(internalPath), pages)
	if err != nil {
		return 0, err
	}
	if err := appendFile(internalPath, tmp); err != nil {
		return 0, err
	}
	os.Remove(tmp)

	return int64(total), nil
}

// writePagesToTempFile writes pages, one page per write, into a
// freshly-named temp file; the caller appends the temp file's contents
// to its final location and removes it.
func writePagesToTempFile(dir string, pages [][]page.Record) (string, error) {
	if len(pages) == 0 {
		return "", nil
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".btreerun-%s.tmp", uuid.NewString()))
	for _, p := range pages {
		if err := page.WriteRun(tmp, p); err != nil {
			return "", err
		}
	}
	return tmp, nil
}

func appendFile(dst, src string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("btreerun: read temp file %s: %w", src, err)
	}
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("btreerun: open %s for append: %w", dst, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("btreerun: append %s: %w", dst, err)
	}
	return nil
}
