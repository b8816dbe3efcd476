package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	domainauth "github.com/target/bookshelf/internal/domain/auth"
	"github.com/target/bookshelf/internal/domain/nav"
	"github.com/target/bookshelf/internal/observability/metrics"
	"github.com/target/bookshelf/internal/observability/statsd"
	"github.com/target/bookshelf/internal/session"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer, which the nav stream
// needs for flushing.
func (w *respWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// browserRequestKey is an unexported context key type for browser request detection.
type browserRequestKey struct{}

// BrowserDetection returns a middleware that detects browser requests vs API requests so
// downstream handlers can choose between redirects and JSON errors.
func BrowserDetection() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), browserRequestKey{}, isBrowserRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsBrowserRequest returns true if the current request is from a browser.
func IsBrowserRequest(r *http.Request) bool {
	if isBrowser, ok := r.Context().Value(browserRequestKey{}).(bool); ok {
		return isBrowser
	}
	// Fallback to direct detection if middleware wasn't used
	return isBrowserRequest(r)
}

// isBrowserRequest treats /api/ and /static/ as non-browser, htmx as browser, and otherwise
// looks for text/html in Accept (a missing header counts as a browser).
func isBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/static/") {
		return false
	}
	if IsHTMX(r) {
		return true
	}
	accept := r.Header.Get("Accept")
	return accept == "" || strings.Contains(accept, "text/html")
}

// SessionHub hands out the shared identity store of a browser session.
type SessionHub interface {
	Acquire(sessionID string) (*session.Store, func())
	SignOut(ctx context.Context, sessionID string) error
}

// SessionStateOptions configures SessionState.
type SessionStateOptions struct {
	Hub          SessionHub
	CookieDomain string
	// ResolveTimeout bounds how long a request waits for a fresh store to resolve.
	// A store still unknown afterwards renders as anonymous.
	ResolveTimeout time.Duration
}

// SessionState resolves the identity state of the request from its session cookie through the
// shared session store and puts it in the request context. Requests without a cookie are
// anonymous without consulting anything. A cookie whose session is confirmed gone is cleared.
func SessionState(opts SessionStateOptions) func(http.Handler) http.Handler {
	timeout := opts.ResolveTimeout
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r.WithContext(SetStateInContext(r.Context(), "", domainauth.Absent())))
				return
			}

			store, release := opts.Hub.Acquire(cookie.Value)
			defer release()

			wait, cancel := context.WithTimeout(r.Context(), timeout)
			select {
			case <-store.Ready():
				// A degraded store retries on acquire; give the retry the same bound.
				select {
				case <-store.Settled():
				case <-wait.Done():
				}
			case <-wait.Done():
			}
			cancel()

			// Render as anonymous during an outage but keep the cookie until the collaborator
			// confirms the session is gone.
			st := store.Current()
			if st.Kind() == domainauth.StateAbsent && !store.Degraded() {
				clearCookie(w, r, cookieOptions{Name: SessionCookieName, Domain: opts.CookieDomain})
			}
			next.ServeHTTP(w, r.WithContext(SetStateInContext(r.Context(), cookie.Value, st)))
		})
	}
}

// AuthorizeOptions configures AuthorizeView.
type AuthorizeOptions struct {
	Table   nav.Table
	Metrics statsd.Sink
	Logger  *slog.Logger
	// NotFound renders refused routes that have no better fallback. Defaults to a JSON 404.
	NotFound http.Handler
}

// AuthorizeView resolves the navigation for the request and refuses routes the visitor may not
// see. Anonymous visitors on authenticated-only routes are sent to sign in (401 for API
// callers); signed-in visitors on anonymous-only routes go home; invalid or undeclared routes
// are not found. Allowed requests carry the ResolvedView in their context.
func AuthorizeView(opts AuthorizeOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notFound := opts.NotFound
	if notFound == nil {
		notFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errors.New("page not found")})
		})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			view := nav.Resolve(StateFromContext(r.Context()), r.URL.Path, opts.Table)
			if view.IsCurrentRouteAllowed {
				next.ServeHTTP(w, r.WithContext(setViewInContext(r.Context(), view)))
				return
			}

			denial := view.Denial()
			metrics.NavDenied(opts.Metrics, string(denial))
			logger.DebugContext(r.Context(), "route refused",
				slog.String("path", r.URL.Path),
				slog.String("reason", string(denial)))

			ctx := setViewInContext(r.Context(), view)
			switch denial {
			case nav.DenialNeedsSignIn:
				if !IsBrowserRequest(r) {
					WriteError(w, ErrorParams{
						Code:    http.StatusUnauthorized,
						ErrCode: "authentication_required",
						Err:     errors.New("authentication required"),
					})
					return
				}
				redirectToLogin(w, r)
			case nav.DenialSignedIn:
				redirect(w, r, defaultRoute)
			default:
				notFound.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

// redirectToLogin sends browsers to the login page with the current URL as redirect_uri.
// htmx requests land on the signed-out page so they get consistent messaging instead of an
// error swap.
func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	redirectParam := url.QueryEscape(redirectPathForRequest(r))
	if IsHTMX(r) {
		redirect(w, r, signedOutPath+"?"+redirectQueryParameter+"="+redirectParam)
		return
	}
	http.Redirect(w, r, loginPath+"?"+redirectQueryParameter+"="+redirectParam, http.StatusSeeOther)
}

func redirectPathForRequest(r *http.Request) string {
	if IsHTMX(r) {
		if current := safeRedirectFromURL(r.Header.Get("Hx-Current-Url")); current != "" {
			return current
		}
		if referer := safeRedirectFromURL(r.Header.Get("Referer")); referer != "" {
			return referer
		}
	}
	return safeRedirectPath(r.URL.RequestURI())
}

func safeRedirectFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	// Reject scheme-relative or host-only references.
	if u.Host != "" && !u.IsAbs() {
		return ""
	}
	// For absolute URLs, use just the path/query portion to keep redirects within the app.
	if u.IsAbs() {
		return safeRedirectPath(u.RequestURI())
	}
	return safeRedirectPath(raw)
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return defaultRoute
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(candidate, "//") {
		return defaultRoute
	}
	return candidate
}
