// Package kv is the thin dispatcher tying the memtable write buffer to
// one of three interchangeable on-disk backends. Grounded on the
// original Rust Client/KVConfig (lib.rs): open/put/get/scan/update/
// delete/close, memtable-threshold-triggered flush, tombstone filtering
// at the boundary.
package kv

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/intellect4all/kvengine/internal/appendonly"
	"github.com/intellect4all/kvengine/internal/btreerun"
	"github.com/intellect4all/kvengine/internal/lsm"
	"github.com/intellect4all/kvengine/internal/memtable"
	"github.com/intellect4all/kvengine/internal/page"
	"github.com/intellect4all/kvengine/internal/pagecache"
)

// Record is one stored (key, value) pair, as returned by Scan.
type Record = page.Record

// StorageType selects which on-disk backend a Store uses.
type StorageType int

const (
	AppendOnlyLog StorageType = iota
	BTree
	LSMTree
)

// Config configures a Store. Zero value is not directly usable; start
// from DefaultConfig.
type Config struct {
	MemtableSize   uint32
	BufferPoolSize int
	StorageType    StorageType
	Cleanup        bool
}

// DefaultConfig returns the recognized defaults from the configuration
// surface: memtable_size=256, bufferpool_size=256, append_only_log,
// cleanup=false.
func DefaultConfig() Config {
	return Config{
		MemtableSize:   256,
		BufferPoolSize: 256,
		StorageType:    AppendOnlyLog,
		Cleanup:        false,
	}
}

// backend is the minimal surface every on-disk storage type exposes to
// the dispatcher.
type backend interface {
	Flush(records []page.Record) error
	Get(key int64) (int64, bool, error)
	Scan(lo, hi int64, out map[int64]int64) error
}

// Store is the embedded key-value store: an AVL memtable write buffer in
// front of one of the three on-disk backends.
type Store struct {
	dir     string
	cfg     Config
	memtbl  memtable.Tree
	storage backend
}

// Open creates dir if necessary and returns a ready Store. The memtable
// always starts empty: crash recovery beyond flushed-run durability is
// out of scope, matching the original's always-fresh Client::open.
func Open(dir string, cfg Config, log *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("kv: create dir %s: %w", dir, err)
	}
	cache := pagecache.New(cfg.BufferPoolSize, log)

	var (
		b   backend
		err error
	)
	switch cfg.StorageType {
	case AppendOnlyLog:
		b, err = appendonly.Open(dir, cache)
	case BTree:
		b, err = btreerun.Open(dir, cache)
	case LSMTree:
		b, err = lsm.Open(lsm.Config{
			Dir:            dir,
			BufferPoolSize: cfg.BufferPoolSize,
			MemtableSize:   int(cfg.MemtableSize),
		}, log)
	default:
		return nil, fmt.Errorf("kv: unknown storage type %d", cfg.StorageType)
	}
	if err != nil {
		return nil, err
	}

	return &Store{dir: dir, cfg: cfg, storage: b}, nil
}

// Put inserts key/value into the memtable, draining it to the active
// backend once it reaches the configured threshold.
func (s *Store) Put(key, value int64) error {
	s.memtbl.Put(key, value)
	if s.memtbl.Size() >= s.cfg.MemtableSize {
		return s.flush()
	}
	return nil
}

// Update is an alias for Put: both overwrite whatever value key
// previously held.
func (s *Store) Update(key, value int64) error {
	return s.Put(key, value)
}

// Delete marks key as deleted via a tombstone write.
func (s *Store) Delete(key int64) error {
	s.memtbl.Delete(key)
	if s.memtbl.Size() >= s.cfg.MemtableSize {
		return s.flush()
	}
	return nil
}

// Get returns the value for key, checking the memtable before falling
// back to the active backend. A tombstone (from either layer) is
// surfaced as absent.
func (s *Store) Get(key int64) (int64, bool, error) {
	if v, ok := s.memtbl.Get(key); ok {
		if v == page.TombstoneValue {
			return 0, false, nil
		}
		return v, true, nil
	}

	v, ok, err := s.storage.Get(key)
	if err != nil {
		return 0, false, err
	}
	if !ok || v == page.TombstoneValue {
		return 0, false, nil
	}
	return v, true, nil
}

// Scan returns every (key, value) with lo <= key <= hi, merging the
// memtable and the active backend and filtering tombstones out of the
// result. start > end returns empty.
func (s *Store) Scan(lo, hi int64) ([]page.Record, error) {
	if lo > hi {
		return nil, nil
	}

	out := make(map[int64]int64)
	s.memtbl.Scan(lo, hi, out)
	if err := s.storage.Scan(lo, hi, out); err != nil {
		return nil, err
	}

	records := make([]page.Record, 0, len(out))
	for k, v := range out {
		if v == page.TombstoneValue {
			continue
		}
		records = append(records, page.Record{Key: k, Value: v})
	}
	return records, nil
}

// Close flushes any remaining memtable contents and, if Cleanup is set,
// removes the database directory entirely.
func (s *Store) Close() error {
	if s.memtbl.Size() > 0 {
		if err := s.flush(); err != nil {
			return err
		}
	}
	if s.cfg.Cleanup {
		if err := os.RemoveAll(s.dir); err != nil {
			return fmt.Errorf("kv: cleanup %s: %w", s.dir, err)
		}
	}
	return nil
}

func (s *Store) flush() error {
	records := s.memtbl.ScanAll()
	if err := s.storage.Flush(records); err != nil {
		return err
	}
	s.memtbl = memtable.Tree{}
	return nil
}
