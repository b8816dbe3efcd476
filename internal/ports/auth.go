package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service
// and internal/session.

import (
	"context"

	domainauth "github.com/target/bookshelf/internal/domain/auth"
)

// BeginInput carries inputs for initiating an auth flow.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes an authentication flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a
	// per-flow secret (an OIDC nonce or a PKCE verifier, depending on the provider).
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (ExchangeResult, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// ExchangeResult is what a provider hands back after a successful exchange.
type ExchangeResult struct {
	Identity domainauth.Identity
	// AccessToken is kept only when the provider needs it again to revoke the session.
	AccessToken string
}

// SessionStore persists and retrieves user sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// SessionRevoker is implemented by providers that must be told when a session ends.
type SessionRevoker interface {
	Revoke(ctx context.Context, sess domainauth.Session) error
}

// AuthEventBus fans auth-state changes out to interested parties, possibly across processes.
type AuthEventBus interface {
	Publish(ctx context.Context, ev domainauth.Event) error
	// Subscribe registers fn for events of sessionID, or for every session when sessionID is empty.
	// The returned cancel is idempotent.
	Subscribe(sessionID string, fn func(domainauth.Event)) (cancel func())
}

// AuthCollaborator is the external authentication service as seen by one browser session.
type AuthCollaborator interface {
	// CurrentSession returns the identity of the active session, or domainauth.ErrNoSession.
	// Any other error means the collaborator could not be consulted.
	CurrentSession(ctx context.Context) (domainauth.Identity, error)
	// OnAuthStateChange registers fn for every later auth event of the session.
	OnAuthStateChange(fn func(domainauth.Event)) (cancel func())
	// SignOut ends the session at the collaborator.
	SignOut(ctx context.Context) error
}

// SessionPurger deletes expired sessions from backends without native expiry.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}
