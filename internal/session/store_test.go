package session

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/target/bookshelf/internal/domain/auth"
	"github.com/target/bookshelf/internal/mocks"
	mockauth "github.com/target/bookshelf/internal/mocks/auth"
)

func TestInitialize_ResolvesPresent(t *testing.T) {
	collab := mockauth.NewFakeCollaborator(ada)
	store := New(collab, Options{})
	defer store.Close()

	assert.Equal(t, domainauth.StateUnknown, store.Current().Kind())

	waitReady(t, store.Initialize(context.Background()))
	id, ok := store.Current().Identity()
	require.True(t, ok)
	assert.Equal(t, ada, id)
}

func TestInitialize_NoSessionResolvesAbsent(t *testing.T) {
	store := New(mockauth.NewFakeCollaborator(domainauth.Identity{}), Options{})
	defer store.Close()

	waitReady(t, store.Initialize(context.Background()))
	assert.Equal(t, domainauth.StateAbsent, store.Current().Kind())
}

func TestInitialize_CollaboratorFailureFallsBackToAbsent(t *testing.T) {
	ctrl := gomock.NewController(t)
	collab := mocks.NewMockAuthCollaborator(ctrl)
	collab.EXPECT().OnAuthStateChange(gomock.Any()).Return(func() {}).Times(1)
	collab.EXPECT().CurrentSession(gomock.Any()).Return(domainauth.Identity{}, errors.New("connection refused")).Times(1)

	logs := &logBuffer{}
	store := New(collab, Options{Logger: testLogger(logs)})
	defer store.Close()

	ready := store.Initialize(context.Background())
	assert.Equal(t, ready, store.Initialize(context.Background()), "initialize is idempotent")
	waitReady(t, ready)

	assert.Equal(t, domainauth.StateAbsent, store.Current().Kind())
	assert.True(t, store.Degraded())
	assert.Contains(t, logs.String(), ErrAuthCollaboratorUnavailable.Error())
}

func TestInitialize_NoSessionIsNotDegraded(t *testing.T) {
	store := New(mockauth.NewFakeCollaborator(domainauth.Identity{}), Options{})
	defer store.Close()

	waitReady(t, store.Initialize(context.Background()))
	waitReady(t, store.Settled())
	assert.False(t, store.Degraded())
	waitReady(t, store.Refresh(context.Background()))
}

func TestRefresh_RecoversAfterOutage(t *testing.T) {
	collab := mockauth.NewFakeCollaborator(ada)
	collab.SetErr(errors.New("dial tcp: redis unavailable"))
	store := New(collab, Options{})
	defer store.Close()

	waitReady(t, store.Initialize(context.Background()))
	waitReady(t, store.Settled())
	require.True(t, store.Degraded())

	rec := &recorder{}
	store.Subscribe(rec.record)

	waitReady(t, store.Refresh(context.Background()))
	assert.True(t, store.Degraded(), "still failing")
	assert.Empty(t, rec.got())

	collab.SetErr(nil)
	waitReady(t, store.Refresh(context.Background()))
	assert.False(t, store.Degraded())
	assert.True(t, store.Current().Equal(domainauth.Present(ada)))
	assert.Equal(t, []domainauth.State{domainauth.Present(ada)}, rec.got())
}

func TestRefresh_NothingToRetryAfterConfirmedSignOut(t *testing.T) {
	collab := mockauth.NewFakeCollaborator(ada)
	collab.SetErr(errors.New("dial tcp: redis unavailable"))
	store := New(collab, Options{})
	defer store.Close()
	waitReady(t, store.Initialize(context.Background()))
	waitReady(t, store.Settled())

	// A confirmed sign-out clears the degraded mark.
	collab.Emit(domainauth.Event{Kind: domainauth.EventSignedOut})
	collab.SetErr(nil)
	waitReady(t, store.Refresh(context.Background()))

	assert.False(t, store.Degraded())
	assert.Equal(t, domainauth.StateAbsent, store.Current().Kind())
}

func TestSignOut_DegradedStillCallsCollaborator(t *testing.T) {
	collab := mockauth.NewFakeCollaborator(ada)
	collab.SetErr(errors.New("dial tcp: redis unavailable"))
	store := New(collab, Options{})
	defer store.Close()
	waitReady(t, store.Initialize(context.Background()))
	waitReady(t, store.Settled())
	require.True(t, store.Degraded())

	require.NoError(t, store.SignOut(context.Background()))
	assert.Equal(t, 1, collab.SignOutCalls())
	assert.False(t, store.Degraded())

	require.NoError(t, store.SignOut(context.Background()))
	assert.Equal(t, 1, collab.SignOutCalls(), "confirmed sign-out is not repeated")
}

func TestInitialize_DiscardsStaleLookup(t *testing.T) {
	collab := mockauth.NewFakeCollaborator(ada)
	collab.SessionGate = make(chan struct{})
	logs := &logBuffer{}
	store := New(collab, Options{Logger: testLogger(logs)})
	defer store.Close()

	ready := store.Initialize(context.Background())
	require.Eventually(t, func() bool { return collab.Listeners() == 1 }, time.Second, 5*time.Millisecond)

	// The session ends while the lookup is still in flight.
	collab.Emit(domainauth.Event{Kind: domainauth.EventSignedOut})
	waitReady(t, ready)
	close(collab.SessionGate)

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "discarding stale session lookup")
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, domainauth.StateAbsent, store.Current().Kind())
}

func TestSignOut_IsIdempotent(t *testing.T) {
	collab := mockauth.NewFakeCollaborator(ada)
	store := New(collab, Options{})
	defer store.Close()
	waitReady(t, store.Initialize(context.Background()))
	waitReady(t, store.Settled())

	rec := &recorder{}
	cancel := store.Subscribe(rec.record)
	defer cancel()

	require.NoError(t, store.SignOut(context.Background()))
	require.NoError(t, store.SignOut(context.Background()))

	assert.Equal(t, []domainauth.State{domainauth.Absent()}, rec.got())
	assert.Equal(t, 1, collab.SignOutCalls(), "second sign out never reaches the collaborator")
}

func TestSignOut_AbsentDoesNotCallCollaborator(t *testing.T) {
	ctrl := gomock.NewController(t)
	collab := mocks.NewMockAuthCollaborator(ctrl)
	collab.EXPECT().OnAuthStateChange(gomock.Any()).Return(func() {})
	collab.EXPECT().CurrentSession(gomock.Any()).Return(domainauth.Identity{}, domainauth.ErrNoSession)
	// No SignOut expectation: gomock fails the test if it is called.

	store := New(collab, Options{})
	defer store.Close()
	waitReady(t, store.Initialize(context.Background()))
	waitReady(t, store.Settled())

	rec := &recorder{}
	store.Subscribe(rec.record)
	require.NoError(t, store.SignOut(context.Background()))
	assert.Empty(t, rec.got())
}

func TestSignOut_DeregisterBeforeAckDeliversNothing(t *testing.T) {
	collab := mockauth.NewFakeCollaborator(ada)
	collab.SignOutGate = make(chan struct{})
	store := New(collab, Options{})
	defer store.Close()
	waitReady(t, store.Initialize(context.Background()))
	waitReady(t, store.Settled())

	var calls atomic.Int32
	cancel := store.Subscribe(func(domainauth.State) { calls.Add(1) })

	done := make(chan error, 1)
	go func() { done <- store.SignOut(context.Background()) }()
	require.Eventually(t, func() bool { return collab.SignOutCalls() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	cancel()
	close(collab.SignOutGate)

	require.NoError(t, <-done)
	assert.Zero(t, calls.Load())
	assert.Equal(t, domainauth.StateAbsent, store.Current().Kind())
}

func TestSignOut_TimeoutSignsOutLocally(t *testing.T) {
	collab := mockauth.NewFakeCollaborator(ada)
	collab.SignOutGate = make(chan struct{}) // never acknowledged
	store := New(collab, Options{SignOutTimeout: 20 * time.Millisecond})
	defer store.Close()
	waitReady(t, store.Initialize(context.Background()))
	waitReady(t, store.Settled())

	rec := &recorder{}
	store.Subscribe(rec.record)

	err := store.SignOut(context.Background())
	require.ErrorIs(t, err, ErrSignOutTimeout)
	assert.Equal(t, domainauth.StateAbsent, store.Current().Kind())
	assert.Equal(t, []domainauth.State{domainauth.Absent()}, rec.got())
}

func TestSignOut_CollaboratorFailure(t *testing.T) {
	collab := mockauth.NewFakeCollaborator(ada)
	collab.SignOutErr = errors.New("502 bad gateway")
	store := New(collab, Options{})
	defer store.Close()
	waitReady(t, store.Initialize(context.Background()))
	waitReady(t, store.Settled())

	err := store.SignOut(context.Background())
	require.ErrorIs(t, err, ErrAuthCollaboratorUnavailable)
	assert.Contains(t, err.Error(), "502 bad gateway")
	assert.Equal(t, domainauth.StateAbsent, store.Current().Kind())
}

func TestEvents_DriveTransitions(t *testing.T) {
	collab := mockauth.NewFakeCollaborator(domainauth.Identity{})
	store := New(collab, Options{})
	defer store.Close()
	waitReady(t, store.Initialize(context.Background()))
	waitReady(t, store.Settled())

	rec := &recorder{}
	store.Subscribe(rec.record)

	collab.Emit(domainauth.Event{Kind: domainauth.EventSignedIn, Identity: ada})
	collab.Emit(domainauth.Event{Kind: domainauth.EventSignedIn, Identity: ada}) // unchanged
	collab.Emit(domainauth.Event{Kind: domainauth.EventSignedIn, Identity: grace})
	collab.Emit(domainauth.Event{Kind: domainauth.EventExpired})

	got := rec.got()
	require.Len(t, got, 3)
	assert.True(t, got[0].Equal(domainauth.Present(ada)))
	assert.True(t, got[1].Equal(domainauth.Present(grace)))
	assert.Equal(t, domainauth.StateAbsent, got[2].Kind())
}

func TestDelivery_IsOrderedAndNotReentrant(t *testing.T) {
	collab := mockauth.NewFakeCollaborator(ada)
	store := New(collab, Options{})
	defer store.Close()
	waitReady(t, store.Initialize(context.Background()))
	waitReady(t, store.Settled())

	var depth atomic.Int32
	var order []string
	enter := func(name string, s domainauth.State) {
		if depth.Add(1) > 1 {
			t.Errorf("re-entrant delivery to %s", name)
		}
		order = append(order, name+":"+s.String())
	}

	store.Subscribe(func(s domainauth.State) {
		enter("a", s)
		if s.Kind() == domainauth.StateAbsent {
			// Raised mid-round; must wait until b has seen the sign-out.
			collab.Emit(domainauth.Event{Kind: domainauth.EventSignedIn, Identity: grace})
		}
		depth.Add(-1)
	})
	store.Subscribe(func(s domainauth.State) {
		enter("b", s)
		depth.Add(-1)
	})

	collab.Emit(domainauth.Event{Kind: domainauth.EventSignedOut})

	assert.Equal(t, []string{
		"a:absent",
		"b:absent",
		"a:present(u-grace)",
		"b:present(u-grace)",
	}, order)
}

func TestDelivery_CancelledMidRoundMissesQueuedChanges(t *testing.T) {
	collab := mockauth.NewFakeCollaborator(domainauth.Identity{})
	store := New(collab, Options{})
	defer store.Close()
	waitReady(t, store.Initialize(context.Background()))
	waitReady(t, store.Settled())

	first := &recorder{}
	cancelFirst := store.Subscribe(first.record)

	second := &recorder{}
	store.Subscribe(func(st domainauth.State) {
		second.record(st)
		if st.IsPresent() {
			// Queued behind the current round.
			collab.Emit(domainauth.Event{Kind: domainauth.EventSignedOut})
			cancelFirst()
		}
	})

	collab.Emit(domainauth.Event{Kind: domainauth.EventSignedIn, Identity: ada})

	assert.Equal(t, []domainauth.State{domainauth.Present(ada)}, first.got())
	assert.Equal(t, []domainauth.State{domainauth.Present(ada), domainauth.Absent()}, second.got())
	assert.Equal(t, domainauth.StateAbsent, store.Current().Kind())
}

func TestDelivery_RecoversFromPanickingSubscriber(t *testing.T) {
	collab := mockauth.NewFakeCollaborator(ada)
	logs := &logBuffer{}
	store := New(collab, Options{Logger: testLogger(logs)})
	defer store.Close()
	waitReady(t, store.Initialize(context.Background()))
	waitReady(t, store.Settled())

	store.Subscribe(func(domainauth.State) { panic("boom") })
	rec := &recorder{}
	store.Subscribe(rec.record)

	require.NoError(t, store.SignOut(context.Background()))
	assert.Len(t, rec.got(), 1)
	assert.Contains(t, logs.String(), "session subscriber panicked")
}

func TestClose_StopsWatchingCollaborator(t *testing.T) {
	collab := mockauth.NewFakeCollaborator(ada)
	store := New(collab, Options{})
	waitReady(t, store.Initialize(context.Background()))
	waitReady(t, store.Settled())
	require.Equal(t, 1, collab.Listeners())

	rec := &recorder{}
	store.Subscribe(rec.record)
	store.Close()
	store.Close()

	assert.Zero(t, collab.Listeners())
	require.NoError(t, store.SignOut(context.Background()))
	assert.Empty(t, rec.got())
}
