package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/analyticspro/walletlens/internal/domain/model"
	"github.com/analyticspro/walletlens/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SnapshotStore = (*SnapshotRepo)(nil)

// SnapshotRepo is the SQLite implementation of the SnapshotStore port.
// Snapshot bodies are raw markup; they carry no secrets and are stored
// unencrypted.
type SnapshotRepo struct {
	db *DB
}

// NewSnapshotRepo creates a SnapshotRepo.
func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Put stores a new snapshot.
func (r *SnapshotRepo) Put(ctx context.Context, snap model.Snapshot) error {
	const query = `INSERT INTO snapshots (id, body, captured_at) VALUES (?, ?, ?)`
	_, err := r.db.Writer.ExecContext(ctx, query, snap.ID, snap.Body, snap.CapturedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put snapshot %q: %w", snap.ID, err)
	}
	return nil
}

// Latest returns the most recently captured snapshot, or (nil, nil) when the
// store is empty.
func (r *SnapshotRepo) Latest(ctx context.Context) (*model.Snapshot, error) {
	const query = `SELECT id, body, captured_at FROM snapshots ORDER BY captured_at DESC LIMIT 1`

	var snap model.Snapshot
	var capturedAt string
	err := r.db.Reader.QueryRowContext(ctx, query).Scan(&snap.ID, &snap.Body, &capturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}

	snap.CapturedAt, err = time.Parse(time.RFC3339Nano, capturedAt)
	if err != nil {
		return nil, fmt.Errorf("parse captured_at: %w", err)
	}

	return &snap, nil
}

// Prune deletes all but the newest keep snapshots.
func (r *SnapshotRepo) Prune(ctx context.Context, keep int) error {
	if keep < 1 {
		keep = 1
	}

	const query = `DELETE FROM snapshots WHERE id NOT IN (
		SELECT id FROM snapshots ORDER BY captured_at DESC LIMIT ?
	)`
	if _, err := r.db.Writer.ExecContext(ctx, query, keep); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}
