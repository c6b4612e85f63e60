package constants

// SessionState is the coarse state of a review session.
type SessionState string

// Stable values (exposed on the wire).
const (
	StateIdle      SessionState = "IDLE"      // nothing pending
	StateReviewing SessionState = "REVIEWING" // a record is under the cursor
)
