package nav

import (
	domainauth "github.com/target/bookshelf/internal/domain/auth"
)

// Denial explains why a route was refused.
type Denial string

const (
	DenialNone         Denial = ""
	DenialNeedsSignIn  Denial = "needs_sign_in"
	DenialSignedIn     Denial = "signed_in"
	DenialInvalidRoute Denial = "invalid_route"
	DenialUndeclared   Denial = "undeclared"
)

// Actions carries the enabled state of session-dependent affordances.
type Actions struct {
	SignOut bool `json:"sign_out"`
	Profile bool `json:"profile"`
}

// ResolvedView is the per-render navigation derived from identity, route, and table.
type ResolvedView struct {
	Route                 string               `json:"route"`
	Entries               []Entry              `json:"entries"`
	IsCurrentRouteAllowed bool                 `json:"is_current_route_allowed"`
	Actions               Actions              `json:"actions"`
	Identity              *domainauth.Identity `json:"identity,omitempty"`

	denial Denial
}

// Denial reports why the current route was refused, or DenialNone.
func (v ResolvedView) Denial() Denial { return v.denial }

// IsActive reports whether path is the current route; used by templates to mark the active link.
func (v ResolvedView) IsActive(path string) bool {
	key, ok := normalizeRoute(v.Route)
	return ok && key == path
}

// Resolve derives the ResolvedView. It is total: every input has a defined output.
// Unknown identity is treated as absent so authenticated-only entries stay hidden until
// identity is confirmed.
func Resolve(state domainauth.State, route string, table Table) ResolvedView {
	signedIn := state.IsPresent()

	view := ResolvedView{
		Route:   route,
		Entries: make([]Entry, 0, len(table.entries)),
		Actions: Actions{SignOut: signedIn, Profile: signedIn},
	}
	if id, ok := state.Identity(); ok {
		view.Identity = &id
	}

	for _, e := range table.entries {
		if visible(e.Visibility, signedIn) {
			view.Entries = append(view.Entries, e)
		}
	}

	view.IsCurrentRouteAllowed, view.denial = allowed(route, signedIn, table)
	return view
}

// IsAllowed reports whether route may be rendered for state.
func IsAllowed(state domainauth.State, route string, table Table) bool {
	ok, _ := allowed(route, state.IsPresent(), table)
	return ok
}

func visible(v Visibility, signedIn bool) bool {
	switch v {
	case VisibilityAlways:
		return true
	case VisibilityAuthenticatedOnly:
		return signedIn
	case VisibilityAnonymousOnly:
		return !signedIn
	default:
		return false
	}
}

func allowed(route string, signedIn bool, table Table) (bool, Denial) {
	key, ok := normalizeRoute(route)
	if !ok {
		return false, DenialInvalidRoute
	}
	e, declared := table.lookup(key)
	if !declared {
		if table.opts.DenyUndeclared {
			return false, DenialUndeclared
		}
		return true, DenialNone
	}
	switch e.Visibility {
	case VisibilityAuthenticatedOnly:
		if !signedIn {
			return false, DenialNeedsSignIn
		}
	case VisibilityAnonymousOnly:
		if signedIn {
			return false, DenialSignedIn
		}
	}
	return true, DenialNone
}
