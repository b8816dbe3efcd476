package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/target/bookshelf/internal/domain/nav"
)

// PageData is what every page template receives.
type PageData struct {
	Page        Page
	View        nav.ResolvedView
	CSRFToken   string
	RedirectURI string
}

// TemplateRenderer renders HTML templates for UI responses.
type TemplateRenderer struct {
	t      *template.Template
	logger *slog.Logger
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	TemplateFS fs.FS        // Filesystem containing templates (required)
	Logger     *slog.Logger // Logger for template errors (optional)
}

// NewTemplateRenderer constructs a renderer by parsing templates from the provided config.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	if cfg.TemplateFS == nil {
		return nil, errors.New("TemplateFS is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	renderer := &TemplateRenderer{logger: logger}
	t, err := template.New("root").Funcs(template.FuncMap{
		"renderContent": renderer.renderContent,
	}).ParseFS(cfg.TemplateFS, "*.tmpl", "pages/*.tmpl", "partials/*.tmpl")
	if err != nil {
		logger.Error("template parsing failed",
			slog.Any("error", err),
			slog.String("phase", "initialization"),
		)
		return nil, err
	}
	renderer.t = t
	return renderer, nil
}

// renderContent executes the page's content template so the layout can embed it.
func (r *TemplateRenderer) renderContent(data PageData) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.t.ExecuteTemplate(&buf, data.Page.Template, data); err != nil {
		return "", fmt.Errorf("render %s: %w", data.Page.Template, err)
	}
	//nolint:gosec // output of html/template is already escaped
	return template.HTML(buf.String()), nil
}

// RenderFull renders the full page (layout + page content).
func (r *TemplateRenderer) RenderFull(w http.ResponseWriter, status int, data PageData) error {
	return r.renderResponse(w, status, "layout", data)
}

// RenderPartial renders the main content area plus an out-of-band navigation swap.
func (r *TemplateRenderer) RenderPartial(w http.ResponseWriter, status int, data PageData) error {
	return r.renderResponse(w, status, "partial", data)
}

// RenderNav writes the navigation fragment for view.
func (r *TemplateRenderer) RenderNav(w io.Writer, view nav.ResolvedView) error {
	var buf bytes.Buffer
	if err := r.t.ExecuteTemplate(&buf, "nav", view); err != nil {
		r.logTemplateError("nav", err)
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (r *TemplateRenderer) renderResponse(w http.ResponseWriter, status int, name string, data PageData) error {
	var buf bytes.Buffer
	if err := r.t.ExecuteTemplate(&buf, name, data); err != nil {
		r.logTemplateError(name, err)
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		r.logger.Error("failed to write rendered template",
			slog.String("template", name),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

func (r *TemplateRenderer) logTemplateError(name string, err error) {
	r.logger.Error("template execution failed",
		slog.String("template", name),
		slog.Any("error", err),
	)
}
