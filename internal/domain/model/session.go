package model

// SessionState is the lifecycle state of the license session.
type SessionState int

const (
	// StateUnauthenticated means no usable credential is held; the unlock
	// surface should be shown.
	StateUnauthenticated SessionState = iota
	// StateLocallyValid means the stored token passed the offline expiry check
	// but has not yet been confirmed by the authority.
	StateLocallyValid
	// StateServerConfirmed means the authority accepted the token during
	// unlock; the heartbeat has not started yet.
	StateServerConfirmed
	// StateActive means the session is unlocked and the heartbeat is running.
	StateActive
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateLocallyValid:
		return "locally_valid"
	case StateServerConfirmed:
		return "server_confirmed"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}
