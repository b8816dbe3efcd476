package httpx

import (
	"context"

	domainauth "github.com/target/bookshelf/internal/domain/auth"
	"github.com/target/bookshelf/internal/domain/nav"
)

// Unexported context key types avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same keys.
type (
	stateKey     struct{}
	sessionIDKey struct{}
	viewKey      struct{}
)

// SetStateInContext returns a child context carrying the identity state and the session ID it
// was resolved for. sessionID is empty for visitors without a session cookie.
func SetStateInContext(ctx context.Context, sessionID string, st domainauth.State) context.Context {
	ctx = context.WithValue(ctx, sessionIDKey{}, sessionID)
	return context.WithValue(ctx, stateKey{}, st)
}

// StateFromContext returns the identity state of the request.
// Requests that never passed through SessionState are unknown, which renders as anonymous.
func StateFromContext(ctx context.Context) domainauth.State {
	if st, ok := ctx.Value(stateKey{}).(domainauth.State); ok {
		return st
	}
	return domainauth.Unknown()
}

// SessionIDFromContext returns the session ID of the request, or "".
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

func setViewInContext(ctx context.Context, view nav.ResolvedView) context.Context {
	return context.WithValue(ctx, viewKey{}, view)
}

// ViewFromContext returns the navigation resolved by AuthorizeView.
func ViewFromContext(ctx context.Context) (nav.ResolvedView, bool) {
	view, ok := ctx.Value(viewKey{}).(nav.ResolvedView)
	return view, ok
}
