package auth

import "time"

// EventKind names an authentication state change.
type EventKind string

const (
	EventSignedIn  EventKind = "signed_in"
	EventSignedOut EventKind = "signed_out"
	EventExpired   EventKind = "expired"
)

// Event is an authentication state change for one browser session.
// Identity is only meaningful for EventSignedIn.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id"`
	Identity  Identity  `json:"identity,omitzero"`
	At        time.Time `json:"at"`
}

// State returns the identity state the event transitions to.
func (e Event) State() State {
	if e.Kind == EventSignedIn {
		return Present(e.Identity)
	}
	return Absent()
}
