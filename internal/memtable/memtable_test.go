package memtable

import (
	"testing"

	"github.com/intellect4all/kvengine/internal/page"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	var tr Tree
	tr.Put(1, 2)
	v, ok := tr.Get(1)
	require.True(t, ok)
	require.EqualValues(t, 2, v)
}

func TestGetMissingKey(t *testing.T) {
	var tr Tree
	tr.Put(1, 2)
	_, ok := tr.Get(4)
	require.False(t, ok)
}

func TestPutOverwriteDoesNotGrowSize(t *testing.T) {
	var tr Tree
	tr.Put(1, 2)
	tr.Put(1, 3)
	require.EqualValues(t, 1, tr.Size())
	v, ok := tr.Get(1)
	require.True(t, ok)
	require.EqualValues(t, 3, v)
}

func TestRepeatedPutsStayBalanced(t *testing.T) {
	var tr Tree
	for i := int64(0); i <= 127; i++ {
		tr.Put(i, i)
	}
	for i := int64(0); i <= 127; i++ {
		v, ok := tr.Get(i)
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	require.EqualValues(t, 128, tr.Size())
	// 128 keys fit an AVL tree of height 8; an unbalanced one would be 128 deep.
	require.LessOrEqual(t, height(tr.root), int32(8))
}

func TestScanAllAscending(t *testing.T) {
	var tr Tree
	order := []int64{50, 20, 80, 10, 30, 70, 90}
	for _, k := range order {
		tr.Put(k, k*2)
	}
	got := tr.ScanAll()
	want := []page.Record{
		{Key: 10, Value: 20}, {Key: 20, Value: 40}, {Key: 30, Value: 60},
		{Key: 50, Value: 100}, {Key: 70, Value: 140}, {Key: 80, Value: 160},
		{Key: 90, Value: 180},
	}
	require.Equal(t, want, got)
}

func TestScanInsertsOnlyWithinRangeAndSkipsExisting(t *testing.T) {
	var tr Tree
	for i := int64(0); i <= 127; i++ {
		tr.Put(i, i)
	}
	out := map[int64]int64{99: -1} // pre-existing value must win
	tr.Scan(90, 100, out)
	require.Len(t, out, 11)
	require.EqualValues(t, -1, out[99])
	require.EqualValues(t, 95, out[95])
}

func TestScanEmptyRangeWhenStartAfterEnd(t *testing.T) {
	var tr Tree
	tr.Put(1, 1)
	out := map[int64]int64{}
	tr.Scan(5, 1, out)
	require.Empty(t, out)
}

func TestDeleteStoresTombstone(t *testing.T) {
	var tr Tree
	tr.Put(7, 100)
	tr.Delete(7)
	v, ok := tr.Get(7)
	require.True(t, ok)
	require.Equal(t, int64(page.TombstoneValue), v)
}
