package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/bookshelf/config"
	"github.com/target/bookshelf/internal/adapters/events"
	domainauth "github.com/target/bookshelf/internal/domain/auth"
	mockauth "github.com/target/bookshelf/internal/mocks/auth"
)

type testEnv struct {
	cfg     config.AppConfig
	backend *sessionBackend
}

func (e *testEnv) app() *app {
	return &app{
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		loadConfig: func() (config.AppConfig, error) { return e.cfg, nil },
		openSessions: func(context.Context, *config.AppConfig, *slog.Logger) (*sessionBackend, error) {
			return e.backend, nil
		},
	}
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNavValidate_BuiltIn(t *testing.T) {
	env := &testEnv{}
	out, err := execute(t, env.app(), "nav", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "PATH")
	assert.Contains(t, out, "/my-books")
	assert.Contains(t, out, "authenticated-only")
	assert.Contains(t, out, "8 entries, deny_undeclared=false")
}

func TestNavValidate_File(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "nav.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`deny_undeclared: true
entries:
  - {path: /, label: Home, visibility: always}
  - {path: /login, label: Login, visibility: anonymous-only}
`), 0o600))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`entries:
  - {path: /, label: Home, visibility: always}
  - {path: /, label: Again, visibility: always}
`), 0o600))

	env := &testEnv{}
	out, err := execute(t, env.app(), "nav", "validate", "--file", good)
	require.NoError(t, err)
	assert.Contains(t, out, "2 entries, deny_undeclared=true")

	_, err = execute(t, env.app(), "nav", "validate", "--file", bad)
	require.Error(t, err)
}

func TestNavResolve(t *testing.T) {
	env := &testEnv{}

	out, err := execute(t, env.app(), "nav", "resolve", "--route", "/my-books")
	require.NoError(t, err)
	var view struct {
		Allowed bool   `json:"is_current_route_allowed"`
		Denial  string `json:"denial"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.False(t, view.Allowed)
	assert.Equal(t, "needs_sign_in", view.Denial)

	out, err = execute(t, env.app(), "nav", "resolve", "--route", "/my-books", "--signed-in", "--email", "ada@example.edu")
	require.NoError(t, err)
	assert.Contains(t, out, `"ada@example.edu"`)
	assert.Contains(t, out, `"is_current_route_allowed": true`)

	_, err = execute(t, env.app(), "nav", "resolve")
	require.Error(t, err, "--route is required")
}

func newSessionEnv(t *testing.T) (*testEnv, *mockauth.MemorySessionStore, *events.LocalBus) {
	t.Helper()
	store := mockauth.NewMemorySessionStore()
	bus := events.NewLocalBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, store.Save(context.Background(), domainauth.Session{
		ID:          "s-ada",
		UserID:      "u-ada",
		Email:       "ada@example.edu",
		AccessToken: "secret-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))
	return &testEnv{backend: &sessionBackend{store: store, events: bus}}, store, bus
}

func TestSessionsShow(t *testing.T) {
	env, _, _ := newSessionEnv(t)

	out, err := execute(t, env.app(), "sessions", "show", "s-ada")
	require.NoError(t, err)
	assert.Contains(t, out, "ada@example.edu")
	assert.Contains(t, out, "[redacted]")
	assert.NotContains(t, out, "secret-token")

	_, err = execute(t, env.app(), "sessions", "show", "missing")
	require.ErrorContains(t, err, `session "missing" not found`)
}

func TestSessionsRevoke(t *testing.T) {
	env, store, bus := newSessionEnv(t)

	got := make(chan domainauth.Event, 1)
	unsubscribe := bus.Subscribe("s-ada", func(ev domainauth.Event) { got <- ev })
	defer unsubscribe()

	out, err := execute(t, env.app(), "sessions", "revoke", "s-ada")
	require.NoError(t, err)
	assert.Contains(t, out, "revoked session s-ada")

	_, err = store.Get(context.Background(), "s-ada")
	require.ErrorIs(t, err, mockauth.ErrNotFound)

	select {
	case ev := <-got:
		assert.Equal(t, domainauth.EventSignedOut, ev.Kind)
		assert.Equal(t, "ada@example.edu", ev.Identity.Email)
	case <-time.After(time.Second):
		t.Fatal("sign-out event not published")
	}

	_, err = execute(t, env.app(), "sessions", "revoke", "s-ada")
	require.ErrorContains(t, err, "not found")
}

type fakePurger struct{ n int64 }

func (f fakePurger) PurgeExpired(context.Context) (int64, error) { return f.n, nil }

func TestSessionsPurge(t *testing.T) {
	env, _, _ := newSessionEnv(t)

	_, err := execute(t, env.app(), "sessions", "purge")
	require.ErrorContains(t, err, "requires the postgres session backend")

	env.backend.purger = fakePurger{n: 3}
	out, err := execute(t, env.app(), "sessions", "purge")
	require.NoError(t, err)
	assert.Equal(t, "purged 3 expired sessions\n", out)
}
