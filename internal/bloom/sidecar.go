package bloom

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/natefinch/atomic"

	"github.com/intellect4all/kvengine/internal/page"
)

// sidecarHeaderSize is the 16-byte header: bitmap size in bits (u64),
// then the B-tree start page index (u64), per spec.md §9's design note.
const sidecarHeaderSize = 16

// Serialize writes b's bitmap alongside btreeStartPage to path, atomically.
// The file is padded with zero bytes to a page boundary.
func Serialize(path string, b *Bitmap, btreeStartPage uint64) error {
	buf := make([]byte, sidecarHeaderSize, sidecarHeaderSize+len(b.bits))
	binary.BigEndian.PutUint64(buf[0:8], b.size)
	binary.BigEndian.PutUint64(buf[8:16], btreeStartPage)
	buf = append(buf, b.bits...)

	if rem := len(buf) % page.Size; rem != 0 {
		buf = append(buf, make([]byte, page.Size-rem)...)
	}
	return atomic.WriteFile(path, &byteReader{buf: buf})
}

// Deserialize loads a sidecar filter written by Serialize, returning the
// bitmap and the recorded B-tree start page index.
func Deserialize(path string) (*Bitmap, uint64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("bloom: read %s: %w", path, err)
	}
	if len(raw) < sidecarHeaderSize {
		return nil, 0, fmt.Errorf("bloom: %s too short for sidecar header", path)
	}

	size := binary.BigEndian.Uint64(raw[0:8])
	btreeStartPage := binary.BigEndian.Uint64(raw[8:16])
	inByteSize := (size + 7) / 8

	if uint64(len(raw)-sidecarHeaderSize) < inByteSize {
		return nil, 0, fmt.Errorf("bloom: %s truncated bitmap", path)
	}

	bits := make([]byte, inByteSize)
	copy(bits, raw[sidecarHeaderSize:uint64(sidecarHeaderSize)+inByteSize])

	return &Bitmap{bits: bits, size: size}, btreeStartPage, nil
}

// byteReader adapts a byte slice to io.Reader for atomic.WriteFile.
type byteReader struct {
	buf []byte
	off int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.off >= len(r.buf) {
		return 0, io.EOF
	}
	n := copy(p, r.buf[r.off:])
	r.off += n
	return n, nil
}
