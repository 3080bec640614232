package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/psantana5/timinghooks/pkg/timers"
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL backends.
// Statements are written with ? placeholders and rebound per dialect.
type sqlStore struct {
	db     *sql.DB
	rebind func(string) string
	upsert string
}

func (s *sqlStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	state, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(s.upsert),
		snap.ID, snap.Label, snap.Host, snap.CreatedAt.UTC(),
		len(snap.State), snap.State.Records(), string(state))
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", snap.ID, err)
	}
	return nil
}

func (s *sqlStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, label, host, created_at, state
		FROM snapshots WHERE id = ?
	`), id)

	var snap Snapshot
	var state []byte
	if err := row.Scan(&snap.ID, &snap.Label, &snap.Host, &snap.CreatedAt, &state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot %s: %w", id, err)
	}
	snap.CreatedAt = snap.CreatedAt.UTC()

	var decoded timers.State
	if err := json.Unmarshal(state, &decoded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state of snapshot %s: %w", id, err)
	}
	snap.State = decoded
	return &snap, nil
}

func (s *sqlStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, host, created_at, names, records
		FROM snapshots ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	infos := make([]SnapshotInfo, 0)
	for rows.Next() {
		var info SnapshotInfo
		var createdAt time.Time
		if err := rows.Scan(&info.ID, &info.Label, &info.Host, &createdAt, &info.Names, &info.Records); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		info.CreatedAt = createdAt.UTC()
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *sqlStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM snapshots WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSnapshotNotFound
	}
	return nil
}

func (s *sqlStore) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
