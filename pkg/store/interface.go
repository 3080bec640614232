package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/psantana5/timinghooks/pkg/timers"
)

// Snapshot is an exported accumulator state together with where and when it
// was taken.
type Snapshot struct {
	ID        string       `json:"id" yaml:"id"`
	Label     string       `json:"label,omitempty" yaml:"label,omitempty"`
	Host      string       `json:"host,omitempty" yaml:"host,omitempty"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at"`
	State     timers.State `json:"state" yaml:"state"`
}

// SnapshotInfo is the listing form of a snapshot, without its records
type SnapshotInfo struct {
	ID        string    `json:"id" yaml:"id"`
	Label     string    `json:"label,omitempty" yaml:"label,omitempty"`
	Host      string    `json:"host,omitempty" yaml:"host,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Names     int       `json:"names" yaml:"names"`
	Records   int       `json:"records" yaml:"records"`
}

// NewSnapshot wraps state in a snapshot with a fresh ID
func NewSnapshot(label, host string, state timers.State) *Snapshot {
	return &Snapshot{
		ID:        uuid.New().String(),
		Label:     label,
		Host:      host,
		CreatedAt: time.Now().UTC(),
		State:     state,
	}
}

// Info returns the listing form of s
func (s *Snapshot) Info() SnapshotInfo {
	return SnapshotInfo{
		ID:        s.ID,
		Label:     s.Label,
		Host:      s.Host,
		CreatedAt: s.CreatedAt,
		Names:     len(s.State),
		Records:   s.State.Records(),
	}
}

// Store defines the interface for snapshot persistence.
// Memory, SQLite, PostgreSQL and Badger implement it.
type Store interface {
	// Save stores a snapshot. Saving an existing ID replaces it.
	Save(ctx context.Context, snap *Snapshot) error
	Get(ctx context.Context, id string) (*Snapshot, error)
	// List returns every snapshot, oldest first
	List(ctx context.Context) ([]SnapshotInfo, error)
	Delete(ctx context.Context, id string) error

	HealthCheck() error
	Close() error
}

// Config holds store configuration
type Config struct {
	Type string // "memory", "sqlite", "postgres" or "badger"
	DSN  string // PostgreSQL connection string

	// PostgreSQL specific
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// SQLite file or Badger directory. Empty Badger path runs in memory.
	Path string
}

// NewStore creates a store based on configuration
func NewStore(config Config) (Store, error) {
	switch config.Type {
	case "memory", "":
		return NewMemoryStore(), nil
	case "sqlite":
		path := config.Path
		if path == "" {
			path = config.DSN
		}
		if path == "" {
			path = "timinghooks.db"
		}
		return NewSQLiteStore(path)
	case "postgres", "postgresql":
		return NewPostgreSQLStore(config)
	case "badger":
		return NewBadgerStore(config.Path)
	default:
		return nil, ErrUnsupportedBackend
	}
}

var (
	ErrUnsupportedBackend = NewError("unsupported store type")
	ErrSnapshotNotFound   = NewError("snapshot not found")
	ErrInvalidSnapshot    = NewError("invalid snapshot")
)

// NewError creates a new error with message
func NewError(message string) error {
	return &storeError{message: message}
}

type storeError struct {
	message string
}

func (e *storeError) Error() string {
	return e.message
}

func validate(snap *Snapshot) error {
	if snap == nil || snap.ID == "" {
		return ErrInvalidSnapshot
	}
	if err := snap.State.Validate(); err != nil {
		return err
	}
	return nil
}

// Combine merges the snapshots with the given IDs, or every stored snapshot
// when no ID is given, into one accumulator.
func Combine(ctx context.Context, s Store, opts []timers.Option, ids ...string) (*timers.Timers, error) {
	if len(ids) == 0 {
		infos, err := s.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			ids = append(ids, info.ID)
		}
	}

	combined := timers.New(opts...)
	for _, id := range ids {
		snap, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := combined.MergeState(snap.State); err != nil {
			return nil, err
		}
	}
	return combined, nil
}
