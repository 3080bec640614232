package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

var snapshotPrefix = []byte("snapshot/")

// BadgerStore keeps snapshots in an embedded Badger database, one JSON value
// per snapshot under snapshot/<id>.
type BadgerStore struct {
	db       *badger.DB
	inMemory bool
}

// NewBadgerStore opens (or creates) a Badger database in dir.
// An empty dir keeps everything in memory.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db, inMemory: dir == ""}, nil
}

func snapshotKey(id string) []byte {
	return append(append([]byte{}, snapshotPrefix...), id...)
}

// Save stores a snapshot
func (s *BadgerStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snap.ID), data)
	})
}

// Get retrieves a snapshot by ID
func (s *BadgerStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", id, err)
	}
	return &snap, nil
}

// List returns every snapshot, oldest first
func (s *BadgerStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	infos := make([]SnapshotInfo, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(snapshotPrefix); it.ValidForPrefix(snapshotPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				var snap Snapshot
				if err := json.Unmarshal(val, &snap); err != nil {
					return err
				}
				infos = append(infos, snap.Info())
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	sortInfos(infos)
	return infos, nil
}

// Delete removes a snapshot
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key := snapshotKey(id)
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrSnapshotNotFound
	}
	return err
}

// Vacuum runs one value log garbage collection pass. Having nothing to
// rewrite is not an error.
func (s *BadgerStore) Vacuum() error {
	if s.inMemory {
		return nil
	}
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

// HealthCheck reports whether the database is open
func (s *BadgerStore) HealthCheck() error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close closes the database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
