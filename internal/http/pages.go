package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/target/bookshelf/internal/domain/nav"
)

// PageHandlers renders the library pages inside the navigation layout.
type PageHandlers struct {
	Renderer *TemplateRenderer
	Table    nav.Table
	Logger   *slog.Logger
}

// Serve renders the page declared for the request path, or the not-found page.
func (h *PageHandlers) Serve(w http.ResponseWriter, r *http.Request) {
	view, ok := ViewFromContext(r.Context())
	if !ok {
		view = nav.Resolve(StateFromContext(r.Context()), r.URL.Path, h.Table)
	}

	page, found := Pages[pageKey(r.URL.Path)]
	if !found {
		h.NotFound(w, r)
		return
	}
	renderPage(w, r, h.Renderer, pageRequest{
		Page:        page,
		View:        view,
		Status:      http.StatusOK,
		RedirectURI: safeRedirectPath(r.URL.Query().Get(redirectQueryParameter)),
	})
}

// NotFound renders the not-found page for browsers and a JSON 404 otherwise.
func (h *PageHandlers) NotFound(w http.ResponseWriter, r *http.Request) {
	if !IsBrowserRequest(r) || h.Renderer == nil {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errors.New("page not found")})
		return
	}
	view, ok := ViewFromContext(r.Context())
	if !ok {
		view = nav.Resolve(StateFromContext(r.Context()), r.URL.Path, h.Table)
	}
	renderPage(w, r, h.Renderer, pageRequest{Page: notFoundPage, View: view, Status: http.StatusNotFound})
}

func pageKey(path string) string {
	if path == defaultRoute {
		return path
	}
	return strings.TrimSuffix(path, "/")
}

type pageRequest struct {
	Page        Page
	View        nav.ResolvedView
	Status      int
	RedirectURI string
}

// renderPage renders a full document, or only the content fragment for htmx navigation.
// Without a renderer the resolved view is returned as JSON.
func renderPage(w http.ResponseWriter, r *http.Request, renderer *TemplateRenderer, req pageRequest) {
	if renderer == nil {
		WriteJSON(w, req.Status, navResponse{ResolvedView: req.View, Denial: string(req.View.Denial())})
		return
	}
	data := PageData{
		Page:        req.Page,
		View:        req.View,
		CSRFToken:   GetCSRFToken(r),
		RedirectURI: req.RedirectURI,
	}
	render := renderer.RenderFull
	if WantsPartial(r) {
		render = renderer.RenderPartial
	}
	if err := render(w, req.Status, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
