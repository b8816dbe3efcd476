// Package mocks provides gomock mocks for the ports the session layer depends on.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	collab := mocks.NewMockAuthCollaborator(ctrl)
//	collab.EXPECT().SignOut(gomock.Any()).Return(nil)
package mocks

// Generate mock for AuthCollaborator interface from internal/ports package.
// This creates MockAuthCollaborator with methods for all AuthCollaborator interface methods:
// CurrentSession, OnAuthStateChange, SignOut
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=auth_collaborator_mock.go github.com/target/bookshelf/internal/ports AuthCollaborator

// Generate mock for AuthEventBus interface from internal/ports package.
// This creates MockAuthEventBus with methods for all AuthEventBus interface methods:
// Publish, Subscribe
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=auth_event_bus_mock.go github.com/target/bookshelf/internal/ports AuthEventBus

// Generate mock for SessionPurger interface from internal/ports package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_purger_mock.go github.com/target/bookshelf/internal/ports SessionPurger
