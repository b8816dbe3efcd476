package mocks

import (
	"testing"

	"github.com/target/bookshelf/internal/ports"
)

// This test only verifies that the generated mocks conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.AuthCollaborator = (*MockAuthCollaborator)(nil)
	var _ ports.AuthEventBus = (*MockAuthEventBus)(nil)
}
