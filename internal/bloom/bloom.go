// Package bloom implements the fixed-size bitmap Bloom filter the LSM
// backend uses to short-circuit negative lookups before touching disk.
package bloom

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// BitsPerEntry is the default bitmap density: bits-per-inserted-key.
const BitsPerEntry = 10

// K is the number of independent hash functions used by every filter.
const K = 10

// seeds are fixed constants baked into the implementation, one per hash
// function, mirroring the original XxHash64::with_seed(seed) scheme.
var seeds = [K]uint64{
	11798049322123270191,
	15539830439605854879,
	6578765718544580074,
	71743494464343003,
	9094065546985931996,
	17578418613310108530,
	3998834685102698833,
	17224146472807812495,
	13715473566396950222,
	7265912439666505101,
}

// Bitmap is a fixed-size bitmap Bloom filter over int64 keys.
type Bitmap struct {
	bits []byte
	size uint64 // number of addressable bits
}

// New allocates a Bitmap with exactly size bits (rounded up to a byte).
func New(size uint64) *Bitmap {
	return &Bitmap{
		bits: make([]byte, (size+7)/8),
		size: size,
	}
}

// NewForEntries sizes a filter for n entries at bitsPerEntry density.
func NewForEntries(n int, bitsPerEntry int) *Bitmap {
	return New(uint64(bitsPerEntry) * uint64(n))
}

func (b *Bitmap) set(idx uint64) {
	b.bits[idx/8] |= 1 << (idx % 8)
}

func (b *Bitmap) isSet(idx uint64) bool {
	return b.bits[idx/8]&(1<<(idx%8)) != 0
}

func keyBytes(key int64) [8]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(key))
	return buf
}

// Insert sets all K bit positions derived from key.
func (b *Bitmap) Insert(key int64) {
	buf := keyBytes(key)
	for _, seed := range seeds {
		h := xxhash.NewWithSeed(seed)
		h.Write(buf[:])
		b.set(h.Sum64() % b.size)
	}
}

// Check reports whether key might be present. A false result is certain;
// a true result may be a false positive.
func (b *Bitmap) Check(key int64) bool {
	buf := keyBytes(key)
	for _, seed := range seeds {
		h := xxhash.NewWithSeed(seed)
		h.Write(buf[:])
		if !b.isSet(h.Sum64() % b.size) {
			return false
		}
	}
	return true
}

// Size reports the bitmap width in bits.
func (b *Bitmap) Size() uint64 { return b.size }
