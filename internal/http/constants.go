package httpx

import "time"

// Cookie names shared by the auth handlers and middleware.
const (
	SessionCookieName      = "session_id"
	oauthStateCookieName   = "oauth_state"
	oauthNonceCookieName   = "oauth_nonce"
	postLoginRedirectName  = "post_login_redirect"
	oauthCookieMaxAge      = 600 // 10 minutes
	defaultResolveTimeout  = 2 * time.Second
	defaultNavHeartbeat    = 25 * time.Second
	defaultRoute           = "/"
	signedOutPath          = "/auth/signed-out"
	loginPath              = "/login"
	redirectQueryParameter = "redirect_uri"
)

// Template paths used for loading templates in tests and production.
const (
	TemplatePathFromRoot = "frontend/templates"       // From project root
	TemplatePathFromTest = "../../frontend/templates" // From internal/http test files
	StaticPathFromRoot   = "frontend/static"
)

// Page describes a server-rendered page: its title and the content template it fills the layout with.
type Page struct {
	Title    string
	Template string
}

// Pages maps routes to the pages rendered for them.
//
//nolint:gochecknoglobals // static read-only lookup
var Pages = map[string]Page{
	"/":          {Title: "Home", Template: "home-content"},
	"/books":     {Title: "Browse", Template: "books-content"},
	"/my-books":  {Title: "My Books", Template: "my-books-content"},
	"/bookmarks": {Title: "Bookmarks", Template: "bookmarks-content"},
	"/reviews":   {Title: "Reviews", Template: "reviews-content"},
	"/profile":   {Title: "Profile", Template: "profile-content"},
	"/login":     {Title: "Login", Template: "login-content"},
	"/signup":    {Title: "Sign up", Template: "signup-content"},
}

var (
	signedOutPage = Page{Title: "Signed out", Template: "signed-out-content"}
	notFoundPage  = Page{Title: "Not found", Template: "not-found-content"}
)
