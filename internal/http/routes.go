package httpx

import (
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	bookshelf "github.com/target/bookshelf"
	"github.com/target/bookshelf/internal/domain/nav"
	"github.com/target/bookshelf/internal/observability/statsd"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Auth  AuthServiceInterface
	Hub   SessionHub
	Table nav.Table
	// Renderer is built from the embedded templates (or disk in dev) when nil.
	Renderer     *TemplateRenderer
	Metrics      statsd.Sink
	HealthChecks map[string]HealthCheck
	CookieDomain string

	NavHeartbeat   time.Duration
	ResolveTimeout time.Duration

	IsDev  bool         // Development mode flag for serving templates and assets from disk.
	Logger *slog.Logger // Logger for template and HTTP errors (optional)
}

// NewRouter creates and configures the HTTP router with the browser middleware chain.
//
// Static assets and health checks bypass session resolution. Everything else runs through
// CSRFProtection and SessionState, and pages are additionally gated by AuthorizeView.
// Recover and Logging are applied by the caller.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := services.Renderer
	if renderer == nil {
		renderer = setupRenderer(services.IsDev, logger)
	}

	pages := &PageHandlers{Renderer: renderer, Table: services.Table, Logger: logger}
	authHandlers := &AuthHandlers{
		Svc:          services.Auth,
		Hub:          services.Hub,
		Renderer:     renderer,
		Table:        services.Table,
		CookieDomain: services.CookieDomain,
		Logger:       logger,
	}
	navHandlers := &NavHandlers{
		Hub:       services.Hub,
		Table:     services.Table,
		Renderer:  renderer,
		Heartbeat: services.NavHeartbeat,
		Logger:    logger,
	}

	app := http.NewServeMux()
	registerAuthRoutes(app, authHandlers)
	app.HandleFunc("GET /api/nav", navHandlers.Resolve)
	app.HandleFunc("GET /events/nav", navHandlers.Stream)
	app.Handle("GET /", AuthorizeView(AuthorizeOptions{
		Table:    services.Table,
		Metrics:  services.Metrics,
		Logger:   logger,
		NotFound: http.HandlerFunc(pages.NotFound),
	})(http.HandlerFunc(pages.Serve)))

	var appHandler http.Handler = app
	appHandler = SessionState(SessionStateOptions{
		Hub:            services.Hub,
		CookieDomain:   services.CookieDomain,
		ResolveTimeout: services.ResolveTimeout,
	})(appHandler)
	appHandler = CSRFProtection(CSRFConfig{CookieDomain: services.CookieDomain})(appHandler)

	root := http.NewServeMux()
	health := healthHandler(services.HealthChecks)
	root.Handle("GET /healthz", health)
	root.Handle("HEAD /healthz", health)
	root.Handle("GET /static/", staticHandler(services.IsDev, logger))
	root.Handle("/", appHandler)

	return BrowserDetection()(root)
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	if h.Svc != nil {
		mux.HandleFunc("GET /auth/login", h.Login)
		mux.HandleFunc("GET /auth/callback", h.Callback)
	}
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/status", h.Status)
	mux.HandleFunc("GET /auth/signed-out", h.SignedOut)
}

// setupRenderer loads templates from disk in dev mode and from the embedded FS otherwise.
// A renderer that cannot be built leaves pages answering with JSON.
func setupRenderer(isDev bool, logger *slog.Logger) *TemplateRenderer {
	var templateFS fs.FS
	if isDev {
		templateFS = os.DirFS(TemplatePathFromRoot)
	} else {
		sub, err := fs.Sub(bookshelf.TemplateFS, TemplatePathFromRoot)
		if err != nil {
			logger.Error("failed to create sub-filesystem for templates", slog.Any("error", err))
			return nil
		}
		templateFS = sub
	}

	tr, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: templateFS, Logger: logger})
	if err != nil {
		logger.Error("failed to create template renderer", slog.Any("error", err))
		return nil
	}
	return tr
}

// staticHandler serves /static/* from disk in dev mode and from the embedded FS otherwise.
func staticHandler(isDev bool, logger *slog.Logger) http.Handler {
	if isDev {
		return staticWithCacheHeaders(http.StripPrefix("/static/", http.FileServer(http.Dir(StaticPathFromRoot))), isDev)
	}
	staticSub, err := fs.Sub(bookshelf.StaticFS, StaticPathFromRoot)
	if err != nil {
		logger.Error("failed to create sub-filesystem for static assets", slog.Any("error", err))
		return staticWithCacheHeaders(http.StripPrefix("/static/", http.FileServer(http.Dir(StaticPathFromRoot))), isDev)
	}
	return staticWithCacheHeaders(http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))), isDev)
}

// staticWithCacheHeaders disables caching in dev and allows short caching otherwise.
func staticWithCacheHeaders(handler http.Handler, isDev bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case isDev:
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		case strings.HasSuffix(r.URL.Path, ".js"), strings.HasSuffix(r.URL.Path, ".css"):
			w.Header().Set("Cache-Control", "public, max-age=3600")
		}
		handler.ServeHTTP(w, r)
	})
}
