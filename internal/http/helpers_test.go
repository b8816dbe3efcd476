package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	domainauth "github.com/target/bookshelf/internal/domain/auth"
	"github.com/target/bookshelf/internal/domain/nav"
	mockauth "github.com/target/bookshelf/internal/mocks/auth"
	"github.com/target/bookshelf/internal/ports"
	"github.com/target/bookshelf/internal/service"
	"github.com/target/bookshelf/internal/session"
)

var ada = domainauth.Identity{
	UserID:    "u-ada",
	Email:     "ada@example.edu",
	FirstName: "Ada",
	LastName:  "Lovelace",
	ExpiresAt: time.Now().Add(time.Hour),
}

func testTable(t *testing.T) nav.Table {
	t.Helper()
	table, err := nav.NewTable([]nav.Entry{
		{Path: "/", Label: "Home", Visibility: nav.VisibilityAlways},
		{Path: "/books", Label: "Browse", Visibility: nav.VisibilityAlways},
		{Path: "/my-books", Label: "My Books", Visibility: nav.VisibilityAuthenticatedOnly},
		{Path: "/profile", Label: "Profile", Visibility: nav.VisibilityAuthenticatedOnly},
		{Path: "/login", Label: "Login", Visibility: nav.VisibilityAnonymousOnly},
	}, nav.TableOptions{})
	if err != nil {
		t.Fatalf("build table: %v", err)
	}
	return table
}

// collabSet hands out one FakeCollaborator per session ID. Sessions listed in signed start
// signed in; every other ID resolves to no session.
type collabSet struct {
	mu     sync.Mutex
	byID   map[string]*mockauth.FakeCollaborator
	signed map[string]domainauth.Identity
}

func (c *collabSet) get(sessionID string) ports.AuthCollaborator {
	return c.collab(sessionID)
}

func (c *collabSet) collab(sessionID string) *mockauth.FakeCollaborator {
	c.mu.Lock()
	defer c.mu.Unlock()
	if collab, ok := c.byID[sessionID]; ok {
		return collab
	}
	collab := mockauth.NewFakeCollaborator(c.signed[sessionID])
	c.byID[sessionID] = collab
	return collab
}

func newTestHub(t *testing.T) (*session.Hub, *collabSet) {
	t.Helper()
	set := &collabSet{
		byID:   map[string]*mockauth.FakeCollaborator{},
		signed: map[string]domainauth.Identity{"s-ada": ada},
	}
	hub := session.NewHub(session.HubOptions{
		Collaborators: set.get,
		Store:         session.Options{SignOutTimeout: 200 * time.Millisecond},
	})
	t.Cleanup(hub.Close)
	return hub, set
}

type stubAuthService struct {
	beginResult    *service.BeginLoginResult
	beginErr       error
	completeResult *service.CompleteLoginResult
	completeErr    error

	gotRedirect string
	gotComplete service.CompleteLoginInput
}

func (s *stubAuthService) BeginLogin(_ context.Context, redirectURL string) (*service.BeginLoginResult, error) {
	s.gotRedirect = redirectURL
	return s.beginResult, s.beginErr
}

func (s *stubAuthService) CompleteLogin(_ context.Context, in service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
	s.gotComplete = in
	return s.completeResult, s.completeErr
}

func sessionCookie(id string) *http.Cookie {
	return &http.Cookie{Name: SessionCookieName, Value: id}
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
