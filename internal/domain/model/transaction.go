package model

import "time"

// TransactionRecord is a single transaction-like entry extracted from the host
// wallet page. Records are derived fresh from the page snapshot on every
// refresh cycle and never persisted; uniqueness is per extracted element, not
// deduplicated across refreshes.
type TransactionRecord struct {
	// DateKey is the calendar day in the host's MM/DD/YYYY form.
	DateKey string
	// Time is the wall-clock time in HH:MM (24h) form, "00:00" when the host
	// element carried no time token.
	Time string
	// Description is the host's free-text label for the entry.
	Description string
	// Amount is the signed sum of all numeric fragments in the element's
	// amount nodes. Zero when no fragment parsed.
	Amount float64
	// Frozen reports the host's freeze marker (dedicated class or the literal
	// word "Frozen" in the element text).
	Frozen bool
	// Withdrawal reports that the description names a withdrawal.
	Withdrawal bool
	// ThawAt is the absolute time the frozen amount matures: the entry's
	// UTC-normalized timestamp plus the 30-day freeze window. Nil for
	// non-frozen records.
	ThawAt *time.Time
}

// WithdrawalRecord is one entry of the lifetime withdrawal list. Amounts are
// absolute values; the list is never filtered by the active time window.
type WithdrawalRecord struct {
	DateKey string
	Time    string
	Amount  float64
}

// ThawCandidate is the soonest-maturing frozen record whose thaw time is still
// in the future. It drives the live countdown and is re-selected on every
// refresh cycle.
type ThawCandidate struct {
	ThawAt  time.Time
	Amount  float64
	DateKey string
}
