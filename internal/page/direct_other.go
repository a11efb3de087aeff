//go:build !linux

package page

import (
	"fmt"
	"os"
)

// appendDirect falls back to plain buffered append on platforms without
// O_DIRECT (spec.md's "if the platform supports it" clause).
func appendDirect(path string, data []byte) error {
	if err := ensureParentDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("page: open %s for append: %w", path, err)
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

func readPageDirect(path string, byteOffset int64) ([]byte, error) {
	f, err := os.Open(path)
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
