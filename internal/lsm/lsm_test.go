package lsm

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/intellect4all/kvengine/internal/page"
)

func testTree(t *testing.T, memtableSize int) *Tree {
	t.Helper()
	log, err := zap.NewDevelopment()
	require.NoError(t, err)
	cfg := DefaultConfig(t.TempDir())
	cfg.MemtableSize = memtableSize
	cfg.BufferPoolSize = 64
	tree, err := Open(cfg, log.Sugar())
	require.NoError(t, err)
	return tree
}

func flushBatch(t *testing.T, tree *Tree, start, n int) {
	t.Helper()
	records := make([]page.Record, n)
	for i := 0; i < n; i++ {
		k := int64(start + i)
		records[i] = page.Record{Key: k, Value: k * 2}
	}
	require.NoError(t, tree.Flush(records))
}

func TestFlushMergeThenGetAllKeys(t *testing.T) {
	tree := testTree(t, 8)
	for b := 0; b < 5; b++ {
		flushBatch(t, tree, b*8, 8)
	}

	for k := int64(0); k < 40; k++ {
		v, ok, err := tree.Get(k)
		require.NoError(t, err)
		require.Truef(t, ok, "key %d should be present", k)
		require.EqualValues(t, k*2, v)
	}

	_, ok, err := tree.Get(40)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestScanAfterMerges(t *testing.T) {
	tree := testTree(t, 8)
	for b := 0; b < 5; b++ {
		flushBatch(t, tree, b*8, 8)
	}

	out := map[int64]int64{}
	require.NoError(t, tree.Scan(0, 30, out))
	require.Len(t, out, 31)
	for k := int64(0); k <= 30; k++ {
		require.EqualValues(t, k*2, out[k])
	}
}

func TestNewerFlushWinsOverOlderMergedLevel(t *testing.T) {
	tree := testTree(t, 4)
	require.NoError(t, tree.Flush([]page.Record{
		{Key: 1, Value: 100}, {Key: 2, Value: 200}, {Key: 3, Value: 300}, {Key: 4, Value: 400},
	}))
	require.NoError(t, tree.Flush([]page.Record{
		{Key: 1, Value: 999}, {Key: 5, Value: 500}, {Key: 6, Value: 600}, {Key: 7, Value: 700},
	}))

	v, ok, err := tree.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 999, v)

	v, ok, err = tree.Get(5)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 500, v)
}

func TestEmptyFlushIsNoop(t *testing.T) {
	tree := testTree(t, 8)
	require.NoError(t, tree.Flush(nil))
	_, ok, err := tree.Get(0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetAndScanBeforeAnyFlush(t *testing.T) {
	tree := testTree(t, 8)
	_, ok, err := tree.Get(42)
	require.NoError(t, err)
	require.False(t, ok)

	out := map[int64]int64{}
	require.NoError(t, tree.Scan(0, 10, out))
	require.Empty(t, out)
}

func TestScanStartAfterEndReturnsEmpty(t *testing.T) {
	tree := testTree(t, 8)
	flushBatch(t, tree, 0, 8)

	out := map[int64]int64{}
	require.NoError(t, tree.Scan(5, 1, out))
	require.Empty(t, out)
}
