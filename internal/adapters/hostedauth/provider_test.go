package hostedauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/bookshelf/internal/domain/auth"
	apperrors "github.com/target/bookshelf/internal/errors"
	"github.com/target/bookshelf/internal/ports"
)

const testSecret = "super-secret-jwt-key-for-tests-only"

func signToken(t *testing.T, sub, aud string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		Email: "token@uni.edu",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{aud},
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

// fakeBackend imitates the token and logout endpoints of the hosted auth API.
type fakeBackend struct {
	t            *testing.T
	mu           sync.Mutex
	accessToken  string
	user         map[string]any
	logoutStatus int
	logouts      []string
	lastVerifier string
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(f.t, "anon-key", r.Header.Get("apikey"))

	switch r.URL.Path {
	case "/auth/v1/token":
		assert.Equal(f.t, "pkce", r.URL.Query().Get("grant_type"))
		var body map[string]string
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		if body["auth_code"] != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		f.lastVerifier = body["code_verifier"]
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": f.accessToken,
			"token_type":   "bearer",
			"expires_in":   3600,
			"user":         f.user,
		})
	case "/auth/v1/logout":
		f.logouts = append(f.logouts, r.Header.Get("Authorization"))
		status := f.logoutStatus
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeBackend) setToken(tok string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessToken = tok
}

func (f *fakeBackend) setLogoutStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutStatus = status
}

func (f *fakeBackend) snapshot() (verifier string, logouts []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastVerifier, append([]string(nil), f.logouts...)
}

func newFixture(t *testing.T) (*Provider, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{
		t:           t,
		accessToken: signToken(t, "user-42", "authenticated", time.Now().Add(time.Hour)),
		user: map[string]any{
			"id":            "user-42",
			"email":         "ada@uni.edu",
			"user_metadata": map[string]any{"given_name": "Ada", "last_name": "Lovelace"},
		},
	}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	p, err := NewProvider(Config{
		BaseURL:     srv.URL,
		APIKey:      "anon-key",
		JWTSecret:   testSecret,
		Provider:    "github",
		RedirectURL: "http://localhost:8080/auth/callback",
	})
	require.NoError(t, err)
	return p, backend
}

func TestNewProvider_Validation(t *testing.T) {
	_, err := NewProvider(Config{BaseURL: "not a url", Claims: ClaimMapping{Email: "email[["}})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	for _, want := range []string{"API key is required", "JWT secret is required", "redirect URL is required", "base URL must be absolute", "invalid claim expression"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestBegin_BuildsPKCEAuthorizeURL(t *testing.T) {
	p, _ := newFixture(t)

	authURL, state, verifier, err := p.Begin(context.Background(), ports.BeginInput{RedirectURL: "/my-books"})
	require.NoError(t, err)
	require.NotEmpty(t, verifier)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "/auth/v1/authorize", u.Path)
	q := u.Query()
	assert.Equal(t, "github", q.Get("provider"))
	assert.Equal(t, "s256", q.Get("code_challenge_method"))
	assert.NotEqual(t, verifier, q.Get("code_challenge"))
	assert.Equal(t, "http://localhost:8080/auth/callback?state="+state, q.Get("redirect_to"))
}

func TestExchange_MapsUserAndKeepsToken(t *testing.T) {
	p, backend := newFixture(t)

	res, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "good-code", State: "s", Nonce: "verifier-1"})
	require.NoError(t, err)
	verifier, _ := backend.snapshot()
	assert.Equal(t, "verifier-1", verifier)
	assert.Equal(t, "user-42", res.Identity.UserID)
	assert.Equal(t, "ada@uni.edu", res.Identity.Email)
	assert.Equal(t, "Ada", res.Identity.FirstName)
	assert.Equal(t, "Lovelace", res.Identity.LastName)
	assert.WithinDuration(t, time.Now().Add(time.Hour), res.Identity.ExpiresAt, time.Minute)
	assert.Equal(t, backend.accessToken, res.AccessToken)
}

func TestExchange_Rejections(t *testing.T) {
	t.Run("bad code", func(t *testing.T) {
		p, _ := newFixture(t)
		_, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "bad", Nonce: "v"})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})
	t.Run("wrong audience", func(t *testing.T) {
		p, backend := newFixture(t)
		backend.setToken(signToken(t, "user-42", "service_role", time.Now().Add(time.Hour)))
		_, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "good-code", Nonce: "v"})
		require.ErrorContains(t, err, "verify access token")
	})
	t.Run("expired token", func(t *testing.T) {
		p, backend := newFixture(t)
		backend.setToken(signToken(t, "user-42", "authenticated", time.Now().Add(-time.Minute)))
		_, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "good-code", Nonce: "v"})
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})
	t.Run("subject mismatch", func(t *testing.T) {
		p, backend := newFixture(t)
		backend.setToken(signToken(t, "someone-else", "authenticated", time.Now().Add(time.Hour)))
		_, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "good-code", Nonce: "v"})
		require.ErrorContains(t, err, "does not match token subject")
	})
	t.Run("missing verifier", func(t *testing.T) {
		p, _ := newFixture(t)
		_, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "good-code"})
		require.ErrorContains(t, err, "code verifier is required")
	})
}

func TestRevoke(t *testing.T) {
	p, backend := newFixture(t)
	ctx := context.Background()

	require.NoError(t, p.Revoke(ctx, domainauth.Session{ID: "s1"}), "no token, nothing to revoke")
	_, logouts := backend.snapshot()
	assert.Empty(t, logouts)

	require.NoError(t, p.Revoke(ctx, domainauth.Session{ID: "s1", AccessToken: "tok"}))
	_, logouts = backend.snapshot()
	assert.Equal(t, []string{"Bearer tok"}, logouts)

	backend.setLogoutStatus(http.StatusUnauthorized)
	require.NoError(t, p.Revoke(ctx, domainauth.Session{AccessToken: "stale"}), "already revoked")

	backend.setLogoutStatus(http.StatusBadGateway)
	err := p.Revoke(ctx, domainauth.Session{AccessToken: "tok"})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
}
