package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://books.example.edu").
	// Used to build absolute redirect URLs for login.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// NavHeartbeat is the keep-alive interval of the navigation event stream.
	NavHeartbeat time.Duration `env:"HTTP_NAV_HEARTBEAT" envDefault:"25s"`

	// SessionResolveTimeout bounds how long a page request waits for an unresolved session.
	SessionResolveTimeout time.Duration `env:"HTTP_SESSION_RESOLVE_TIMEOUT" envDefault:"2s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.CookieDomain = strings.ToLower(strings.TrimSpace(h.CookieDomain))
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 15 * time.Second
	}
	if h.SessionResolveTimeout <= 0 || h.SessionResolveTimeout > 30*time.Second {
		h.SessionResolveTimeout = 2 * time.Second
	}
	if h.NavHeartbeat < time.Second {
		h.NavHeartbeat = 25 * time.Second
	}
}

// Validate rejects a cookie domain that browsers would refuse to store cookies for.
func (h *HTTPConfig) Validate() error {
	domain := strings.TrimPrefix(h.CookieDomain, ".")
	if domain == "" || net.ParseIP(domain) != nil {
		return nil
	}
	if suffix, _ := publicsuffix.PublicSuffix(domain); suffix == domain {
		return fmt.Errorf("APP_COOKIE_DOMAIN %q is a public suffix; use a registrable domain", h.CookieDomain)
	}
	return nil
}
