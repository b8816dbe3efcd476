// Package nav holds the static navigation declaration and the pure resolver that derives
// what a visitor may see and reach from their identity state.
package nav

import (
	"errors"
	"fmt"
	"strings"
)

// Visibility is the rule deciding when an entry is shown.
type Visibility string

const (
	VisibilityAlways            Visibility = "always"
	VisibilityAuthenticatedOnly Visibility = "authenticated-only"
	VisibilityAnonymousOnly     Visibility = "anonymous-only"
)

// Valid reports whether v is one of the declared tags.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityAlways, VisibilityAuthenticatedOnly, VisibilityAnonymousOnly:
		return true
	default:
		return false
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so tags can be read from YAML or env.
func (v *Visibility) UnmarshalText(text []byte) error {
	candidate := Visibility(strings.ToLower(strings.TrimSpace(string(text))))
	if !candidate.Valid() {
		return fmt.Errorf("invalid visibility: %q (valid options: always, authenticated-only, anonymous-only)", string(text))
	}
	*v = candidate
	return nil
}

// Entry declares one navigable route.
type Entry struct {
	Path       string     `json:"path"       yaml:"path"`
	Label      string     `json:"label"      yaml:"label"`
	Visibility Visibility `json:"visibility" yaml:"visibility"`
}

// TableOptions tune how routes outside the declared entries are treated.
type TableOptions struct {
	// DenyUndeclared refuses routes that are not in the table. Off by default,
	// which keeps arbitrary content routes reachable.
	DenyUndeclared bool
}

// Table is the immutable, validated, ordered navigation declaration.
type Table struct {
	entries []Entry
	index   map[string]int
	opts    TableOptions
}

// ErrInvalidTable wraps every validation failure returned by NewTable.
var ErrInvalidTable = errors.New("invalid navigation table")

// NewTable validates entries and builds a Table. Paths must be valid routes and unique,
// labels non-empty, and visibility one of the declared tags.
func NewTable(entries []Entry, opts TableOptions) (Table, error) {
	t := Table{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
		opts:    opts,
	}
	var errs []error
	for i, e := range entries {
		key, ok := normalizeRoute(e.Path)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("entry %d: invalid path %q", i, e.Path))
			continue
		case strings.TrimSpace(e.Label) == "":
			errs = append(errs, fmt.Errorf("entry %d (%s): label is required", i, e.Path))
			continue
		case !e.Visibility.Valid():
			errs = append(errs, fmt.Errorf("entry %d (%s): invalid visibility %q", i, e.Path, e.Visibility))
			continue
		}
		if prev, dup := t.index[key]; dup {
			errs = append(errs, fmt.Errorf("entry %d: path %q duplicates entry %d", i, e.Path, prev))
			continue
		}
		e.Path = key
		t.index[key] = len(t.entries)
		t.entries = append(t.entries, e)
	}
	if len(errs) > 0 {
		return Table{}, fmt.Errorf("%w: %w", ErrInvalidTable, errors.Join(errs...))
	}
	return t, nil
}

// MustTable is NewTable for static declarations known to be valid; it panics otherwise.
func MustTable(entries []Entry, opts TableOptions) Table {
	t, err := NewTable(entries, opts)
	if err != nil {
		panic(err)
	}
	return t
}

// Entries returns a copy of the declared entries in order.
func (t Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Options returns the table's options.
func (t Table) Options() TableOptions { return t.opts }

// Len returns the number of declared entries.
func (t Table) Len() int { return len(t.entries) }

func (t Table) lookup(route string) (Entry, bool) {
	i, ok := t.index[route]
	if !ok {
		return Entry{}, false
	}
	return t.entries[i], true
}

// normalizeRoute validates a route and returns its match key. A single trailing slash is
// dropped; empty or dot segments make the route invalid.
func normalizeRoute(route string) (string, bool) {
	if route == "" || route[0] != '/' {
		return "", false
	}
	if route == "/" {
		return route, true
	}
	trimmed := strings.TrimSuffix(route, "/")
	for _, seg := range strings.Split(trimmed[1:], "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", false
		}
	}
	return trimmed, true
}

// ValidRoute reports whether route is well-formed for matching.
func ValidRoute(route string) bool {
	_, ok := normalizeRoute(route)
	return ok
}
