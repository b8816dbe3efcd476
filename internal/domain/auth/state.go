package auth

// StateKind tags the variant held by a State.
type StateKind uint8

const (
	// StateUnknown means identity resolution is still outstanding.
	StateUnknown StateKind = iota
	// StateAbsent means the visitor is anonymous.
	StateAbsent
	// StatePresent means an identity is signed in.
	StatePresent
)

func (k StateKind) String() string {
	switch k {
	case StateAbsent:
		return "absent"
	case StatePresent:
		return "present"
	default:
		return "unknown"
	}
}

// State is the tagged variant unknown | absent | present(Identity).
// The zero value is unknown.
type State struct {
	kind     StateKind
	identity Identity
}

// Unknown returns the state used while resolution is outstanding.
func Unknown() State { return State{kind: StateUnknown} }

// Absent returns the anonymous state.
func Absent() State { return State{kind: StateAbsent} }

// Present returns the signed-in state for id.
func Present(id Identity) State { return State{kind: StatePresent, identity: id} }

// Kind returns the variant tag.
func (s State) Kind() StateKind { return s.kind }

// IsPresent reports whether an identity is signed in. Unknown is not present.
func (s State) IsPresent() bool { return s.kind == StatePresent }

// IsResolved reports whether the state is no longer unknown.
func (s State) IsResolved() bool { return s.kind != StateUnknown }

// Identity returns the identity and true when present.
func (s State) Identity() (Identity, bool) {
	if s.kind != StatePresent {
		return Identity{}, false
	}
	return s.identity, true
}

// Equal reports whether two states describe the same identity.
// Present states compare by UserID and Email.
func (s State) Equal(o State) bool {
	if s.kind != o.kind {
		return false
	}
	if s.kind != StatePresent {
		return true
	}
	return s.identity.UserID == o.identity.UserID && s.identity.Email == o.identity.Email
}

func (s State) String() string {
	if s.kind == StatePresent {
		return "present(" + s.identity.UserID + ")"
	}
	return s.kind.String()
}
