package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of the snapshot store
type MemoryStore struct {
	snapshots map[string]*Snapshot
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]*Snapshot),
	}
}

// Save stores a copy of snap
func (s *MemoryStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	cp := *snap
	cp.State = snap.State.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.ID] = &cp
	return nil
}

// Get retrieves a snapshot by ID
func (s *MemoryStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[id]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	cp := *snap
	cp.State = snap.State.Clone()
	return &cp, nil
}

// List returns every snapshot, oldest first
func (s *MemoryStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	s.mu.RLock()
	infos := make([]SnapshotInfo, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		infos = append(infos, snap.Info())
	}
	s.mu.RUnlock()

	sortInfos(infos)
	return infos, nil
}

// Delete removes a snapshot
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snapshots[id]; !ok {
		return ErrSnapshotNotFound
	}
	delete(s.snapshots, id)
	return nil
}

// HealthCheck always succeeds
func (s *MemoryStore) HealthCheck() error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

func sortInfos(infos []SnapshotInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.Before(infos[j].CreatedAt)
		}
		return infos[i].ID < infos[j].ID
	})
}
