package page

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestPadToPageExactBoundary(t *testing.T) {
	require.Len(t, PadToPage(nil), 0)

	var one []byte
	for i := 0; i < RecordSize; i++ {
		one = append(one, byte(i))
	}
	require.Len(t, PadToPage(append([]byte{}, one...)), Size)

	two := append(append([]byte{}, one...), one...)
	require.Len(t, PadToPage(two), Size)

	full := make([]byte, Size)
	require.Len(t, PadToPage(full), Size)
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "output_1.bin")

	n := (Size / RecordSize) * 3
	records := make([]Record, n)
	for i := 0; i < n; i++ {
		records[i] = Record{Key: int64(i), Value: int64(i * 2)}
	}
	require.NoError(t, WriteRun(path, records))

	for page := 0; page < 3; page++ {
		got, err := ReadPage(path, int64(page*Size))
		require.NoError(t, err)
		want := records[page*MaxRecordsPerPage : (page+1)*MaxRecordsPerPage]
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("page %d mismatch (-want +got):\n%s", page, diff)
		}
	}
}

func TestTombstoneValue(t *testing.T) {
	r := Record{Key: 5, Value: TombstoneValue}
	require.True(t, r.IsTombstone())
	require.False(t, Record{Key: 5, Value: 0}.IsTombstone())
}
