package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/bookshelf/internal/domain/auth"
	"github.com/target/bookshelf/internal/ports"
)

func TestMockAuthProvider_BeginIsDeterministic(t *testing.T) {
	provider := NewMockAuthProvider()
	ctx := context.Background()

	authURL, state, nonce, err := provider.Begin(ctx, ports.BeginInput{RedirectURL: "/my-books"})
	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/auth", authURL)
	assert.Equal(t, "state-1", state)
	assert.Equal(t, "nonce-1", nonce)

	_, state, _, err = provider.Begin(ctx, ports.BeginInput{})
	require.NoError(t, err)
	assert.Equal(t, "state-2", state)
}

func TestMockAuthProvider_ExchangeRefreshesExpiry(t *testing.T) {
	provider := NewMockAuthProvider()
	res, err := provider.Exchange(context.Background(), ports.ExchangeInput{Code: "c"})
	require.NoError(t, err)
	assert.Equal(t, "mock.student@example.edu", res.Identity.Email)
	assert.WithinDuration(t, time.Now().Add(time.Hour), res.Identity.ExpiresAt, time.Minute)
}

func TestMemorySessionStore(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	require.Error(t, store.Save(ctx, domainauth.Session{}))
	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "s1", UserID: "u1"}))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, store.Gets())
}

func TestFakeCollaborator(t *testing.T) {
	collab := NewFakeCollaborator(domainauth.Identity{UserID: "u1", Email: "a@b.edu"})
	ctx := context.Background()

	id, err := collab.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)

	var got []domainauth.EventKind
	cancel := collab.OnAuthStateChange(func(ev domainauth.Event) { got = append(got, ev.Kind) })
	collab.Emit(domainauth.Event{Kind: domainauth.EventExpired})
	cancel()
	collab.Emit(domainauth.Event{Kind: domainauth.EventSignedIn})
	assert.Equal(t, []domainauth.EventKind{domainauth.EventExpired}, got)
	assert.Zero(t, collab.Listeners())

	require.NoError(t, collab.SignOut(ctx))
	_, err = collab.CurrentSession(ctx)
	assert.ErrorIs(t, err, domainauth.ErrNoSession)
	assert.Equal(t, 1, collab.SignOutCalls())

	collab.SetErr(errors.New("dial tcp: redis unavailable"))
	_, err = collab.CurrentSession(ctx)
	assert.EqualError(t, err, "dial tcp: redis unavailable")
}
