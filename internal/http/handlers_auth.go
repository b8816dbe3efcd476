package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	domainauth "github.com/target/bookshelf/internal/domain/auth"
	"github.com/target/bookshelf/internal/domain/nav"
	"github.com/target/bookshelf/internal/service"
	"github.com/target/bookshelf/internal/session"
)

// AuthServiceInterface defines the login operations the handlers need.
type AuthServiceInterface interface {
	BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*service.CompleteLoginResult, error)
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc          AuthServiceInterface
	Hub          SessionHub
	Renderer     *TemplateRenderer
	Table        nav.Table
	CookieDomain string
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Login handles the login initiation endpoint.
// GET /auth/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get(redirectQueryParameter))

	result, err := h.Svc.BeginLogin(r.Context(), redirectURI)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusBadGateway,
			ErrCode: "login_failed",
			Err:     errors.New("could not start sign-in"),
		})
		return
	}

	for name, value := range map[string]string{
		oauthStateCookieName:  result.State,
		oauthNonceCookieName:  result.Nonce,
		postLoginRedirectName: redirectURI,
	} {
		setCookie(w, r, cookieOptions{Name: name, Value: value, Domain: h.CookieDomain, MaxAge: oauthCookieMaxAge})
	}

	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback handles the OAuth callback endpoint.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")
	switch {
	case q.Get("error") != "":
		h.logger().WarnContext(r.Context(), "identity provider refused sign-in",
			"error", q.Get("error"), "description", q.Get("error_description"))
		http.Redirect(w, r, signedOutPath, http.StatusFound)
		return
	case code == "":
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_code", Err: errors.New("authorization code is required")})
		return
	case state == "":
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_state", Err: errors.New("state parameter is required")})
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookieName)
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_state", Err: errors.New("invalid or missing state parameter")})
		return
	}
	nonceCookie, err := r.Cookie(oauthNonceCookieName)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_nonce", Err: errors.New("missing nonce parameter")})
		return
	}

	result, err := h.Svc.CompleteLogin(r.Context(), service.CompleteLoginInput{
		Code:  code,
		State: state,
		Nonce: nonceCookie.Value,
	})
	if err != nil {
		h.logger().ErrorContext(r.Context(), "complete login failed", "error", err)
		WriteAppError(w, err)
		return
	}

	setCookie(w, r, cookieOptions{
		Name:   SessionCookieName,
		Value:  result.Session.ID,
		Domain: h.CookieDomain,
		MaxAge: int(time.Until(result.Session.ExpiresAt).Seconds()),
	})
	for _, name := range []string{oauthStateCookieName, oauthNonceCookieName} {
		clearCookie(w, r, cookieOptions{Name: name, Domain: h.CookieDomain})
	}

	http.Redirect(w, r, h.postLoginRedirect(w, r), http.StatusFound)
}

// postLoginRedirect returns the post-login redirect URL and clears its cookie.
func (h *AuthHandlers) postLoginRedirect(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(postLoginRedirectName)
	if err != nil {
		return defaultRoute
	}
	clearCookie(w, r, cookieOptions{Name: postLoginRedirectName, Domain: h.CookieDomain})
	return safeRedirectPath(c.Value)
}

// Logout signs the session out through its shared store, so every open tab of the session
// observes it, then sends the browser to the signed-out page.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		// Detached so an aborted request does not cut the server-side sign-out short; the
		// store's sign-out timeout still bounds it.
		if signOutErr := h.Hub.SignOut(context.WithoutCancel(r.Context()), c.Value); signOutErr != nil {
			// The visitor is signed out locally either way.
			level := slog.LevelWarn
			if errors.Is(signOutErr, session.ErrSignOutTimeout) {
				level = slog.LevelInfo
			}
			h.logger().Log(r.Context(), level, "sign out incomplete", "error", signOutErr)
		}
	}
	clearCookie(w, r, cookieOptions{Name: SessionCookieName, Domain: h.CookieDomain})

	u := url.URL{Path: signedOutPath}
	q := url.Values{}
	q.Set(redirectQueryParameter, safeRedirectPath(r.FormValue(redirectQueryParameter)))
	u.RawQuery = q.Encode()

	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "success", "redirect_to": u.String()})
		return
	}
	redirect(w, r, u.String())
}

// Status returns the current authentication status.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := StateFromContext(r.Context()).Identity()
	if !ok {
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          id,
		"expires_at":    id.ExpiresAt,
	})
}

// SignedOut renders the signed-out page. Signed-in visitors are sent home.
// GET /auth/signed-out.
func (h *AuthHandlers) SignedOut(w http.ResponseWriter, r *http.Request) {
	st := StateFromContext(r.Context())
	if st.IsPresent() {
		redirect(w, r, defaultRoute)
		return
	}
	renderPage(w, r, h.Renderer, pageRequest{
		Page:        signedOutPage,
		View:        nav.Resolve(domainauth.Absent(), r.URL.Path, h.Table),
		Status:      http.StatusOK,
		RedirectURI: safeRedirectPath(r.URL.Query().Get(redirectQueryParameter)),
	})
}
