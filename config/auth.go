package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeHosted uses a hosted auth service (PKCE code flow, HS256 access tokens).
	AuthModeHosted AuthMode = "hosted"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "oauth", "hosted", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, hosted, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"bookshelf"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:"bookshelf"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// HostedAuthConfig configures the hosted auth service.
type HostedAuthConfig struct {
	BaseURL     string        `env:"BASE_URL"`
	APIKey      string        `env:"API_KEY"`
	JWTSecret   string        `env:"JWT_SECRET"`
	Audience    string        `env:"AUDIENCE"     envDefault:"authenticated"`
	Provider    string        `env:"PROVIDER"     envDefault:"google"`
	RedirectURL string        `env:"REDIRECT_URL" envDefault:"http://localhost:8080/auth/callback"`
	Leeway      time.Duration `env:"LEEWAY"       envDefault:"30s"`

	// JMESPath expressions evaluated against the returned user object. Empty uses the defaults.
	ClaimUserID    string `env:"CLAIM_USER_ID"`
	ClaimEmail     string `env:"CLAIM_EMAIL"`
	ClaimFirstName string `env:"CLAIM_FIRST_NAME"`
	ClaimLastName  string `env:"CLAIM_LAST_NAME"`
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID          string        `env:"USER_ID"          envDefault:"dev-student"`
	Email           string        `env:"EMAIL"            envDefault:"student@example.edu"`
	FirstName       string        `env:"FIRST_NAME"       envDefault:"Dev"`
	LastName        string        `env:"LAST_NAME"        envDefault:"Student"`
	SessionDuration time.Duration `env:"SESSION_DURATION" envDefault:"8h"`
}

const (
	minSignOutTimeout     = 100 * time.Millisecond
	maxSignOutTimeout     = time.Minute
	defaultSignOutTimeout = 5 * time.Second
)

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// Hosted configuration (used when Mode=hosted).
	Hosted HostedAuthConfig `envPrefix:"HOSTED_AUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// SignOutTimeout bounds how long sign-out waits on the auth service.
	SignOutTimeout time.Duration `env:"AUTH_SIGNOUT_TIMEOUT" envDefault:"5s"`
}

// Sanitize clamps the sign-out timeout and trims provider URLs.
func (a *AuthConfig) Sanitize() {
	switch {
	case a.SignOutTimeout <= 0:
		a.SignOutTimeout = defaultSignOutTimeout
	case a.SignOutTimeout < minSignOutTimeout:
		a.SignOutTimeout = minSignOutTimeout
	case a.SignOutTimeout > maxSignOutTimeout:
		a.SignOutTimeout = maxSignOutTimeout
	}
	if a.Mode == "" {
		a.Mode = AuthModeOAuth
	}
	a.Hosted.BaseURL = strings.TrimRight(strings.TrimSpace(a.Hosted.BaseURL), "/")
	a.OAuth.DiscoveryURL = strings.TrimSpace(a.OAuth.DiscoveryURL)
	if a.Hosted.Leeway < 0 {
		a.Hosted.Leeway = 0
	}
}
