package model

import "time"

// Snapshot is one captured copy of the host wallet page's rendered markup.
// Snapshots are the only input to the extraction pipeline; the newest one is
// reprocessed in full on every refresh cycle.
type Snapshot struct {
	ID         string
	Body       []byte
	CapturedAt time.Time
}
