// Package hostedauth adapts a hosted auth backend (GoTrue-compatible, as used by most
// backend-as-a-service platforms) to the auth ports: PKCE login through an external OAuth
// provider, access-token verification, and remote sign-out.
package hostedauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jmespath "github.com/jmespath-community/go-jmespath"
	domainauth "github.com/target/bookshelf/internal/domain/auth"
	apperrors "github.com/target/bookshelf/internal/errors"
	"github.com/target/bookshelf/internal/ports"
	"github.com/target/bookshelf/internal/util"
	"golang.org/x/oauth2"
)

var (
	_ ports.AuthProvider   = (*Provider)(nil)
	_ ports.SessionRevoker = (*Provider)(nil)
)

// ClaimMapping holds JMESPath expressions evaluated against the user object of the token
// response. Empty fields fall back to the defaults from DefaultClaimMapping.
type ClaimMapping struct {
	UserID    string
	Email     string
	FirstName string
	LastName  string
}

// DefaultClaimMapping matches the GoTrue user payload.
func DefaultClaimMapping() ClaimMapping {
	return ClaimMapping{
		UserID:    "id",
		Email:     "email",
		FirstName: "user_metadata.first_name || user_metadata.given_name",
		LastName:  "user_metadata.last_name || user_metadata.family_name",
	}
}

// Config configures the hosted auth adapter.
type Config struct {
	BaseURL     string // project URL, e.g. https://abc.example.co
	APIKey      string // public (anon) key sent as the apikey header
	JWTSecret   string // HS256 secret access tokens are signed with
	Audience    string // expected aud claim; defaults to "authenticated"
	Provider    string // external OAuth provider name passed to /authorize
	RedirectURL string // our callback URL
	Claims      ClaimMapping
	Leeway      time.Duration
	HTTPClient  *http.Client
}

// Provider talks to the hosted auth REST API.
type Provider struct {
	base        *url.URL
	apiKey      string
	secret      []byte
	audience    string
	provider    string
	redirectURL string
	claims      ClaimMapping
	parser      *jwt.Parser
	http        *http.Client
}

// NewProvider validates cfg and compiles the claim mapping.
func NewProvider(cfg Config) (*Provider, error) {
	var errs []error
	if cfg.BaseURL == "" {
		errs = append(errs, apperrors.ValidationField("base_url", "base URL is required"))
	}
	if cfg.APIKey == "" {
		errs = append(errs, apperrors.ValidationField("api_key", "API key is required"))
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, apperrors.ValidationField("jwt_secret", "JWT secret is required"))
	}
	if cfg.RedirectURL == "" {
		errs = append(errs, apperrors.ValidationField("redirect_url", "redirect URL is required"))
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if cfg.BaseURL != "" && (err != nil || base.Scheme == "" || base.Host == "") {
		errs = append(errs, apperrors.ValidationField("base_url", "base URL must be absolute"))
	}

	claims := withDefaults(cfg.Claims)
	for field, expr := range map[string]string{
		"user_id": claims.UserID, "email": claims.Email,
		"first_name": claims.FirstName, "last_name": claims.LastName,
	} {
		if _, compileErr := jmespath.Compile(expr); compileErr != nil {
			errs = append(errs, apperrors.ValidationField(field, fmt.Sprintf("invalid claim expression %q: %v", expr, compileErr)))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("hosted auth: %w", errors.Join(errs...))
	}

	audience := cfg.Audience
	if audience == "" {
		audience = "authenticated"
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "google"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}

	return &Provider{
		base:        base,
		apiKey:      cfg.APIKey,
		secret:      []byte(cfg.JWTSecret),
		audience:    audience,
		provider:    provider,
		redirectURL: cfg.RedirectURL,
		claims:      claims,
		parser:      jwt.NewParser(opts...),
		http:        client,
	}, nil
}

func withDefaults(m ClaimMapping) ClaimMapping {
	d := DefaultClaimMapping()
	if m.UserID == "" {
		m.UserID = d.UserID
	}
	if m.Email == "" {
		m.Email = d.Email
	}
	if m.FirstName == "" {
		m.FirstName = d.FirstName
	}
	if m.LastName == "" {
		m.LastName = d.LastName
	}
	return m
}

// Begin starts a PKCE flow. The returned nonce is the PKCE code verifier; the state travels in
// the redirect_to query so it comes back on our callback.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := util.RandomToken(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	redirect, err := url.Parse(p.redirectURL)
	if err != nil {
		return "", "", "", fmt.Errorf("parse redirect URL: %w", err)
	}
	rq := redirect.Query()
	rq.Set("state", state)
	redirect.RawQuery = rq.Encode()

	q := url.Values{
		"provider":              {p.provider},
		"redirect_to":           {redirect.String()},
		"code_challenge":        {oauth2.S256ChallengeFromVerifier(verifier)},
		"code_challenge_method": {"s256"},
	}
	return p.endpoint("/auth/v1/authorize") + "?" + q.Encode(), state, verifier, nil
}

type tokenResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int64           `json:"expires_in"`
	User        json.RawMessage `json:"user"`
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Exchange trades the auth code and verifier for a session and maps the user onto an identity.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.ExchangeResult, error) {
	if in.Code == "" {
		return ports.ExchangeResult{}, apperrors.ValidationField("code", "authorization code is required")
	}
	if in.Nonce == "" {
		return ports.ExchangeResult{}, apperrors.ValidationField("code_verifier", "code verifier is required")
	}

	body, err := json.Marshal(map[string]string{"auth_code": in.Code, "code_verifier": in.Nonce})
	if err != nil {
		return ports.ExchangeResult{}, fmt.Errorf("encode token request: %w", err)
	}
	var tok tokenResponse
	if err := p.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=pkce", "", body, &tok); err != nil {
		return ports.ExchangeResult{}, fmt.Errorf("exchange code: %w", err)
	}

	claims, err := p.verify(tok.AccessToken)
	if err != nil {
		return ports.ExchangeResult{}, err
	}
	id, err := p.mapUser(tok.User)
	if err != nil {
		return ports.ExchangeResult{}, err
	}
	if id.UserID != claims.Subject {
		return ports.ExchangeResult{}, apperrors.Validationf("user %q does not match token subject %q", id.UserID, claims.Subject)
	}
	if id.Email == "" {
		id.Email = claims.Email
	}
	id.ExpiresAt = claims.ExpiresAt.Time

	return ports.ExchangeResult{Identity: id, AccessToken: tok.AccessToken}, nil
}

// Revoke signs the session out at the hosted backend. Tokens it no longer knows count as revoked.
func (p *Provider) Revoke(ctx context.Context, sess domainauth.Session) error {
	if sess.AccessToken == "" {
		return nil
	}
	err := p.do(ctx, http.MethodPost, "/auth/v1/logout?scope=local", sess.AccessToken, nil, nil)
	var se *statusError
	if errors.As(err, &se) && (se.status == http.StatusUnauthorized || se.status == http.StatusNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (p *Provider) verify(raw string) (*accessClaims, error) {
	if raw == "" {
		return nil, apperrors.ValidationField("access_token", "token response has no access token")
	}
	claims := &accessClaims{}
	_, err := p.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return p.secret, nil })
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "verify access token")
	}
	return claims, nil
}

func (p *Provider) mapUser(raw json.RawMessage) (domainauth.Identity, error) {
	var user any
	if err := json.Unmarshal(raw, &user); err != nil {
		return domainauth.Identity{}, fmt.Errorf("decode user: %w", err)
	}
	str := func(expr string) (string, error) {
		v, err := jmespath.Search(expr, user)
		if err != nil {
			return "", fmt.Errorf("evaluate %q: %w", expr, err)
		}
		s, _ := v.(string)
		return s, nil
	}

	var id domainauth.Identity
	var err error
	if id.UserID, err = str(p.claims.UserID); err != nil {
		return id, err
	}
	if id.Email, err = str(p.claims.Email); err != nil {
		return id, err
	}
	if id.FirstName, err = str(p.claims.FirstName); err != nil {
		return id, err
	}
	if id.LastName, err = str(p.claims.LastName); err != nil {
		return id, err
	}
	return id, nil
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("hosted auth returned %d: %s", e.status, e.body)
}

func (p *Provider) endpoint(path string) string {
	return p.base.String() + path
}

// do sends a request to the hosted API. 4xx answers become validation errors and everything
// else that fails becomes an unavailable error; both keep the *statusError as cause.
func (p *Provider) do(ctx context.Context, method, path, bearer string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, p.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return apperrors.Unavailable(err, "hosted auth unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		se := &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return apperrors.Wrap(se, apperrors.ErrCodeValidation, "hosted auth rejected request")
		}
		return apperrors.Unavailable(se, "hosted auth failed")
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
