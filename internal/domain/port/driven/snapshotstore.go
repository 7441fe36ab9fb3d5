package driven

import (
	"context"

	"github.com/analyticspro/walletlens/internal/domain/model"
)

// SnapshotStore defines the driven port for captured page snapshots. Only the
// newest snapshot feeds the refresh pipeline; older ones are kept as a short
// history and pruned.
type SnapshotStore interface {
	// Put stores a new snapshot.
	Put(ctx context.Context, snap model.Snapshot) error

	// Latest returns the most recently captured snapshot, or (nil, nil) when
	// none has been stored yet.
	Latest(ctx context.Context) (*model.Snapshot, error)

	// Prune deletes all but the newest keep snapshots.
	Prune(ctx context.Context, keep int) error
}
