// Package storage persists full-state snapshots so repeated storage dumps do
// not re-scan the backend. Snapshots are stored in the same prefix-tagged
// record form the state demultiplexer consumes, keyed by block height.
package storage

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	ldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"evmbridge/backend"
	"evmbridge/engine"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a height.
var ErrSnapshotNotFound = fmt.Errorf("storage: snapshot not found")

// SnapshotStore is a LevelDB-backed archive of state snapshots.
type SnapshotStore struct {
	db *leveldb.DB
}

// OpenSnapshotStore opens (or creates) the store at path.
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("storage: snapshot store path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve snapshot path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open snapshot store: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// NewMemSnapshotStore backs the store with in-memory storage, for tests.
func NewMemSnapshotStore() (*SnapshotStore, error) {
	db, err := leveldb.Open(ldbstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &SnapshotStore{db: db}, nil
}

// Close releases the underlying LevelDB resources.
func (s *SnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func heightPrefix(height uint64) []byte {
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, height)
	return prefix
}

// Put stores one snapshot for height, replacing any previous snapshot at the
// same height.
func (s *SnapshotStore) Put(height uint64, snapshot engine.Storage) error {
	records, err := engine.StorageRecords(snapshot)
	if err != nil {
		return fmt.Errorf("storage: encode snapshot: %w", err)
	}

	prefix := heightPrefix(height)
	batch := new(leveldb.Batch)

	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("storage: clear snapshot %d: %w", height, err)
	}

	for _, record := range records {
		key := append(append([]byte(nil), prefix...), record.Key...)
		batch.Put(key, record.Value)
	}
	return s.db.Write(batch, nil)
}

// Get replays the records stored at height through the state demultiplexer,
// so persisted and live snapshots share one decode path.
func (s *SnapshotStore) Get(height uint64) (engine.Storage, error) {
	prefix := heightPrefix(height)
	var records []backend.StateRecord

	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	for iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		value := append([]byte(nil), iter.Value()...)
		records = append(records, backend.StateRecord{Key: key[len(prefix):], Value: value})
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("storage: read snapshot %d: %w", height, err)
	}
	if len(records) == 0 {
		return nil, ErrSnapshotNotFound
	}
	return engine.ParseStorageRecords(records)
}
