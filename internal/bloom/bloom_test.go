package bloom

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertThenCheck(t *testing.T) {
	b := New(200 * 10)
	require.False(t, b.Check(56))
	b.Insert(137)
	require.True(t, b.Check(137))
	require.False(t, b.Check(56))
	b.Insert(56)
	require.True(t, b.Check(56))
}

func TestNewForEntriesNoFalseNegatives(t *testing.T) {
	b := NewForEntries(512, BitsPerEntry)
	for i := int64(0); i <= 511; i++ {
		b.Insert(i)
	}
	for i := int64(0); i <= 511; i++ {
		require.True(t, b.Check(i))
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "filter.bin")

	b := New(5000)
	for i := int64(0); i < 400; i++ {
		b.Insert(i)
	}

	require.NoError(t, Serialize(path, b, 7))

	loaded, btreeIdx, err := Deserialize(path)
	require.NoError(t, err)
	require.EqualValues(t, 7, btreeIdx)
	require.Equal(t, b.size, loaded.size)
	for i := int64(0); i < 400; i++ {
		require.True(t, loaded.Check(i))
	}
}
