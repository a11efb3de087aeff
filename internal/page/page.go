// Package page implements the fixed-width on-disk record format: 4096-byte
// pages of 16-byte big-endian (key, value) records padded with a deadbeef
// sentinel, plus the append/read primitives every backend builds on.
package page

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

const (
	// Size is the fixed page size every run file is a multiple of.
	Size = 4096
	// RecordSize is the encoded size of one (key, value) pair.
	RecordSize = 16
	// MaxRecordsPerPage is how many records fit in a single page.
	MaxRecordsPerPage = Size / RecordSize
)

// TombstoneValue marks a deleted key. Backends never filter it out;
// the kv Store dispatcher does.
const TombstoneValue = math.MinInt64

var paddingBlock = [RecordSize]byte{
	0xde, 0xad, 0xbe, 0xef, 0xde, 0xad, 0xbe, 0xef,
	0xde, 0xad, 0xbe, 0xef, 0xde, 0xad, 0xbe, 0xef,
}

// Record is one fixed-width key-value pair.
type Record struct {
	Key   int64
	Value int64
}

// IsTombstone reports whether r represents a deleted key.
func (r Record) IsTombstone() bool { return r.Value == TombstoneValue }

// Encode returns the big-endian wire form of records in a new slice.
func Encode(records []Record) []byte {
	buf := make([]byte, 0, len(records)*RecordSize)
	for _, r := range records {
		var tmp [RecordSize]byte
		binary.BigEndian.PutUint64(tmp[0:8], uint64(r.Key))
		binary.BigEndian.PutUint64(tmp[8:16], uint64(r.Value))
		buf = append(buf, tmp[:]...)
	}
	return buf
}

// PadToPage returns bytes extended to the next multiple of Size, filling
// the gap with repeated deadbeef blocks.
func PadToPage(bytes []byte) []byte {
	rem := len(bytes) % Size
	if rem == 0 {
		return bytes
	}
	padding := Size - rem
	if padding%RecordSize != 0 {
		panic(fmt.Sprintf("page: padding %d not a multiple of record size", padding))
	}
	for padding > 0 {
		bytes = append(bytes, paddingBlock[:]...)
		padding -= RecordSize
	}
	return bytes
}

// decodePage strips the trailing deadbeef padding and decodes the rest as
// 16-byte big-endian (key, value) chunks.
func decodePage(raw []byte) []Record {
	end := len(raw)
	for end >= RecordSize && string(raw[end-RecordSize:end]) == string(paddingBlock[:]) {
		end -= RecordSize
	}

	body := raw[:end]
	records := make([]Record, 0, len(body)/RecordSize)
	for i := 0; i+RecordSize <= len(body); i += RecordSize {
		key := int64(binary.BigEndian.Uint64(body[i : i+8]))
		value := int64(binary.BigEndian.Uint64(body[i+8 : i+16]))
		records = append(records, Record{Key: key, Value: value})
	}
	return records
}

// WriteRun serializes records (padded to a page boundary) and appends them
// to path, creating the file and its parent directory if necessary.
func WriteRun(path string, records []Record) error {
	bytes := PadToPage(Encode(records))
	return appendDirect(path, bytes)
}

// ReadPage reads the single page at byteOffset in path and decodes its
// records, stripping trailing padding.
func ReadPage(path string, byteOffset int64) ([]Record, error) {
	raw, err := readPageDirect(path, byteOffset)
	if err != nil {
		return nil, err
	}
	return decodePage(raw), nil
}

// PageCount returns how many Size-byte pages path currently occupies.
func PageCount(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size() / Size, nil
}
