package btreerun

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/intellect4all/kvengine/internal/page"
	"github.com/intellect4all/kvengine/internal/pagecache"
)

func testCache(t *testing.T) *pagecache.Cache {
	t.Helper()
	log, err := zap.NewDevelopment()
	require.NoError(t, err)
	return pagecache.New(64, log.Sugar())
}

func sortedRecords(n int) []page.Record {
	records := make([]page.Record, n)
	for i := 0; i < n; i++ {
		records[i] = page.Record{Key: int64(i), Value: int64(i) * 2}
	}
	return records
}

func TestCombinedBuildGetMediumTree(t *testing.T) {
	cache := testCache(t)
	path := filepath.Join(t.TempDir(), "run.bin")

	const n = 20005 // memtable_size=256-style multi-flush worth of keys
	require.NoError(t, BuildCombined(path, sortedRecords(n)))

	run := OpenCombined(path)

	v, ok, err := run.Get(cache, 3899)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 7798, v)

	v, ok, err = run.Get(cache, 8763)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 17526, v)

	_, ok, err = run.Get(cache, 20006)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCombinedBuildScan(t *testing.T) {
	cache := testCache(t)
	path := filepath.Join(t.TempDir(), "run.bin")
	require.NoError(t, BuildCombined(path, sortedRecords(500)))

	run := OpenCombined(path)
	out := map[int64]int64{}
	require.NoError(t, run.Scan(cache, 0, 30, out))
	require.Len(t, out, 31)
	for k := int64(0); k <= 30; k++ {
		require.EqualValues(t, k*2, out[k])
	}
}

func TestSplitBuildGetAndScan(t *testing.T) {
	cache := testCache(t)
	dir := t.TempDir()
	leafPath := filepath.Join(dir, "leaf.bin")
	internalPath := filepath.Join(dir, "internal.bin")

	const n = 25600
	require.NoError(t, page.WriteRun(leafPath, sortedRecords(n)))

	internalPageCount, err := BuildInternalFile(leafPath, internalPath, cache)
	require.NoError(t, err)
	require.Greater(t, internalPageCount, int64(0))

	run := OpenSplit(leafPath, internalPath, internalPageCount)

	v, ok, err := run.Get(cache, 22679)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 22679*2, v)

	_, ok, err = run.Get(cache, 25600)
	require.NoError(t, err)
	require.False(t, ok)

	out := map[int64]int64{}
	require.NoError(t, run.Scan(cache, 333, 9999, out))
	for k := int64(333); k <= 9999; k++ {
		require.EqualValues(t, k*2, out[k])
	}
}

func TestCombinedBuildEmptyIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.bin")
	require.NoError(t, BuildCombined(path, nil))
}
