package kv

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	l, err := zap.NewDevelopment()
	require.NoError(t, err)
	return l.Sugar()
}

func TestAppendOnlyGetAcrossMemtableAndFlushedRuns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemtableSize = 64
	store, err := Open(t.TempDir(), cfg, testLogger(t))
	require.NoError(t, err)

	for i := int64(0); i < 200; i++ {
		require.NoError(t, store.Put(i, i*2))
	}

	v, ok, err := store.Get(12)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 24, v)

	v, ok, err = store.Get(110)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 220, v)
}

func TestGetReturnsMostRecentPut(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemtableSize = 1000
	store, err := Open(t.TempDir(), cfg, testLogger(t))
	require.NoError(t, err)

	require.NoError(t, store.Put(1, 100))
	require.NoError(t, store.Put(1, 200))

	v, ok, err := store.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 200, v)
}

func TestDeleteThenGetIsAbsent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemtableSize = 1000
	store, err := Open(t.TempDir(), cfg, testLogger(t))
	require.NoError(t, err)

	require.NoError(t, store.Put(1, 100))
	require.NoError(t, store.Delete(1))

	_, ok, err := store.Get(1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteAfterFlushIsAbsent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemtableSize = 4
	store, err := Open(t.TempDir(), cfg, testLogger(t))
	require.NoError(t, err)

	for i := int64(0); i < 4; i++ {
		require.NoError(t, store.Put(i, i))
	}
	require.NoError(t, store.Delete(2))

	_, ok, err := store.Get(2)
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err := store.Get(3)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 3, v)
}

func TestScanMergesMemtableAndBackendFilteringTombstones(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemtableSize = 4
	store, err := Open(t.TempDir(), cfg, testLogger(t))
	require.NoError(t, err)

	for i := int64(0); i < 4; i++ {
		require.NoError(t, store.Put(i, i*10))
	}
	require.NoError(t, store.Put(4, 40))
	require.NoError(t, store.Delete(1))

	records, err := store.Scan(0, 4)
	require.NoError(t, err)
	got := map[int64]int64{}
	for _, r := range records {
		got[r.Key] = r.Value
	}
	require.Equal(t, map[int64]int64{0: 0, 2: 20, 3: 30, 4: 40}, got)
}

func TestScanStartAfterEndReturnsEmpty(t *testing.T) {
	cfg := DefaultConfig()
	store, err := Open(t.TempDir(), cfg, testLogger(t))
	require.NoError(t, err)
	require.NoError(t, store.Put(1, 1))

	records, err := store.Scan(5, 1)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestBTreeBackendGetMediumTree(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemtableSize = 256
	cfg.StorageType = BTree
	store, err := Open(t.TempDir(), cfg, testLogger(t))
	require.NoError(t, err)

	for i := int64(0); i < 20005; i++ {
		require.NoError(t, store.Put(i, i*2))
	}

	v, ok, err := store.Get(3899)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 7798, v)

	_, ok, err = store.Get(20006)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCloseWithCleanupRemovesDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Cleanup = true
	store, err := Open(dir, cfg, testLogger(t))
	require.NoError(t, err)
	require.NoError(t, store.Put(1, 1))
	require.NoError(t, store.Close())

	_, statErr := os.Stat(dir)
	require.True(t, os.IsNotExist(statErr))
}
