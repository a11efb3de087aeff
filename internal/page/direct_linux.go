//go:build linux

package page

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// alignedBuffer returns a slice of size n whose start address is aligned
// to the filesystem's typical direct-I/O block size. O_DIRECT requires
// aligned buffers on Linux; without this, reads/writes return EINVAL on
// most filesystems.
func alignedBuffer(n int) []byte {
	const alignment = Size
	raw := make([]byte, n+alignment)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	offset := int(alignment - (addr % alignment))
	if offset == alignment {
		offset = 0
	}
	return raw[offset : offset+n]
}

func appendDirect(path string, data []byte) error {
	if err := ensureParentDir(path); err != nil {
		return err
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	f, err := os.OpenFile(path, flags|unix.O_DIRECT, 0o644)
	if err != nil {
		// O_DIRECT is refused by some filesystems (tmpfs, overlayfs);
		// fall back to buffered I/O rather than failing the write.
		f, err = os.OpenFile(path, flags, 0o644)
		if err != nil {
			return fmt.Errorf("page: open %s for append: %w", path, err)
		}
		defer f.Close()
		_, err = f.Write(data)
		return err
	}
	defer f.Close()

	buf := alignedBuffer(len(data))
	copy(buf, data)
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("page: direct write %s: %w", path, err)
	}
	return nil
}

func readPageDirect(path string, byteOffset int64) ([]byte, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_DIRECT, 0)
	if err != nil {
		f, err = os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("page: open %s for read: %w", path, err)
		}
		defer f.Close()
		buf := make([]byte, Size)
		if _, err := f.ReadAt(buf, byteOffset); err != nil {
			return nil, fmt.Errorf("page: read %s at %d: %w", path, byteOffset, err)
		}
		return buf, nil
	}
	defer f.Close()

	buf := alignedBuffer(Size)
	if _, err := f.ReadAt(buf, byteOffset); err != nil {
		return nil, fmt.Errorf("page: direct read %s at %d: %w", path, byteOffset, err)
	}
	return buf, nil
}
