package auth

// Package auth contains domain-level types for identities, sessions, and auth events.
// It is pure and free of framework/adapter concerns.

import (
	"errors"
	"time"
)

// ErrNoSession is reported by an authentication collaborator when there is no valid session.
var ErrNoSession = errors.New("no active session")

// Identity represents the signed-in user returned by the authentication collaborator.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID    string    `json:"user_id"` // stable user identifier (e.g., sub)
	Email     string    `json:"email"`   // display string shown in the navigation bar
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"` // absolute expiry of the underlying session
}

// DisplayName returns the best human-readable label for the identity.
func (i Identity) DisplayName() string {
	switch {
	case i.FirstName != "" && i.LastName != "":
		return i.FirstName + " " + i.LastName
	case i.FirstName != "":
		return i.FirstName
	default:
		return i.Email
	}
}

// Session is the server-side record we persist for a signed-in browser.
// ID is an opaque session identifier stored in the session cookie.
type Session struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	// AccessToken is the hosted-auth token needed to acknowledge sign-out remotely.
	// Empty for providers that do not hand one out.
	AccessToken string    `json:"access_token,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Identity projects the session onto the identity it represents.
func (s Session) Identity() Identity {
	return Identity{
		UserID:    s.UserID,
		Email:     s.Email,
		FirstName: s.FirstName,
		LastName:  s.LastName,
		ExpiresAt: s.ExpiresAt,
	}
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
