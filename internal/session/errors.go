package session

import "errors"

var (
	// ErrAuthCollaboratorUnavailable wraps failures to reach the authentication collaborator.
	// The store falls back to a degraded anonymous state when it sees one.
	ErrAuthCollaboratorUnavailable = errors.New("auth collaborator unavailable")

	// ErrSignOutTimeout is returned when the collaborator did not acknowledge a sign-out in time.
	// The local state is already anonymous when it is returned.
	ErrSignOutTimeout = errors.New("sign out not acknowledged in time")
)
