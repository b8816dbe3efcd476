package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/target/bookshelf/internal/domain/auth"
	apperrors "github.com/target/bookshelf/internal/errors"
	"github.com/target/bookshelf/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider     = (*MockAuthProvider)(nil)
	_ ports.SessionStore     = (*MemorySessionStore)(nil)
	_ ports.AuthCollaborator = (*FakeCollaborator)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (ports.ExchangeResult, error)

	AuthURL     string
	DefaultUser domainauth.Identity

	mu        sync.Mutex
	callCount int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL: "https://mock-idp/auth",
		DefaultUser: domainauth.Identity{
			UserID:    "mock-user-1",
			FirstName: "Mock",
			LastName:  "Student",
			Email:     "mock.student@example.edu",
		},
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}
	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	return authURL, fmt.Sprintf("state-%d", n), fmt.Sprintf("nonce-%d", n), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.ExchangeResult, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	user := m.DefaultUser
	if user.UserID == "" {
		user = NewMockAuthProvider().DefaultUser
	}
	user.ExpiresAt = time.Now().Add(time.Hour)
	return ports.ExchangeResult{Identity: user}, nil
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
	gets     int
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domainauth.Session)}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	sess, ok := m.sessions[id]
	if id == "" || !ok {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Gets reports how many times Get reached the store.
func (m *MemorySessionStore) Gets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

// ErrNotFound is returned by mocks when an entity is not present.
var ErrNotFound = apperrors.NotFound("not found")

// FakeCollaborator is a scriptable ports.AuthCollaborator.
//
// CurrentSession returns Identity, or Err when set, or domainauth.ErrNoSession when Identity
// is empty. When SessionGate is non-nil the call blocks until it is closed. SignOut blocks on
// SignOutGate the same way, giving up when its context ends.
type FakeCollaborator struct {
	mu          sync.Mutex
	Identity    domainauth.Identity
	Err         error
	SessionGate chan struct{}
	SignOutGate chan struct{}
	SignOutErr  error

	signOutCalls int
	listeners    map[int]func(domainauth.Event)
	nextID       int
}

// NewFakeCollaborator returns a collaborator that reports id as signed in.
func NewFakeCollaborator(id domainauth.Identity) *FakeCollaborator {
	return &FakeCollaborator{Identity: id}
}

func (f *FakeCollaborator) CurrentSession(ctx context.Context) (domainauth.Identity, error) {
	f.mu.Lock()
	gate := f.SessionGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domainauth.Identity{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.Err != nil:
		return domainauth.Identity{}, f.Err
	case f.Identity.UserID == "":
		return domainauth.Identity{}, domainauth.ErrNoSession
	default:
		return f.Identity, nil
	}
}

func (f *FakeCollaborator) OnAuthStateChange(fn func(domainauth.Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listeners == nil {
		f.listeners = make(map[int]func(domainauth.Event))
	}
	f.nextID++
	id := f.nextID
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *FakeCollaborator) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.signOutCalls++
	gate := f.SignOutGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SignOutErr != nil {
		return f.SignOutErr
	}
	f.Identity = domainauth.Identity{}
	return nil
}

// Emit delivers ev to every registered listener synchronously.
func (f *FakeCollaborator) Emit(ev domainauth.Event) {
	f.mu.Lock()
	fns := make([]func(domainauth.Event), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// SetErr makes later CurrentSession calls fail with err, or answer normally again when err
// is nil.
func (f *FakeCollaborator) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// SignOutCalls reports how many times SignOut was invoked.
func (f *FakeCollaborator) SignOutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOutCalls
}

// Listeners reports how many OnAuthStateChange registrations are active.
func (f *FakeCollaborator) Listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}
