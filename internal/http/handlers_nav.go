package httpx

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	domainauth "github.com/target/bookshelf/internal/domain/auth"
	"github.com/target/bookshelf/internal/domain/nav"
)

// navResponse is the JSON shape of a resolved view.
type navResponse struct {
	nav.ResolvedView
	Denial string `json:"denial,omitempty"`
}

// NavHandlers exposes the resolved navigation as JSON and as a live event stream.
type NavHandlers struct {
	Hub       SessionHub
	Table     nav.Table
	Renderer  *TemplateRenderer
	Heartbeat time.Duration
	Logger    *slog.Logger
}

func (h *NavHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func routeParam(r *http.Request) string {
	if route := r.URL.Query().Get("route"); route != "" {
		return route
	}
	return defaultRoute
}

// Resolve returns the navigation for ?route= under the caller's identity state.
// Invalid routes are reported through is_current_route_allowed rather than an error.
// GET /api/nav?route=/my-books.
func (h *NavHandlers) Resolve(w http.ResponseWriter, r *http.Request) {
	view := nav.Resolve(StateFromContext(r.Context()), routeParam(r), h.Table)
	WriteJSON(w, http.StatusOK, navResponse{ResolvedView: view, Denial: string(view.Denial())})
}

// Stream pushes the rendered navigation for ?route= as Server-Sent Events, once on connect
// and again on every identity change of the session. When a change makes the route
// unreachable a location event names where the page should go instead.
// GET /events/nav?route=/my-books.
func (h *NavHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	route := routeParam(r)
	if !nav.ValidRoute(route) {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_route", Err: errors.New("route is not a valid path")})
		return
	}

	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	updates := make(chan domainauth.State, 1)
	current := StateFromContext(r.Context())
	if sessionID := SessionIDFromContext(r.Context()); sessionID != "" {
		store, release := h.Hub.Acquire(sessionID)
		defer release()
		cancel := store.Subscribe(func(st domainauth.State) { offerLatest(updates, st) })
		defer cancel()
		current = store.Current()
	}

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultNavHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	if err := h.send(w, rc, route, current); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil || rc.Flush() != nil {
				return
			}
		case st := <-updates:
			if err := h.send(w, rc, route, st); err != nil {
				return
			}
		}
	}
}

// offerLatest replaces any undelivered state so a slow client only ever sees the newest one.
func offerLatest(ch chan domainauth.State, st domainauth.State) {
	for {
		select {
		case ch <- st:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (h *NavHandlers) send(w http.ResponseWriter, rc *http.ResponseController, route string, st domainauth.State) error {
	view := nav.Resolve(st, route, h.Table)

	var frag bytes.Buffer
	if h.Renderer != nil {
		if err := h.Renderer.RenderNav(&frag, view); err != nil {
			return err
		}
	} else {
		frag.WriteString(fmt.Sprintf("%d entries", len(view.Entries)))
	}

	var ev bytes.Buffer
	writeEvent(&ev, "nav", frag.Bytes())
	if !view.IsCurrentRouteAllowed {
		writeEvent(&ev, "location", []byte(fallbackLocation(view)))
	}
	if _, err := ev.WriteTo(w); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		h.logger().Debug("nav stream flush failed", "error", err)
		return err
	}
	return nil
}

// fallbackLocation mirrors where AuthorizeView would send a browser for a refused route.
func fallbackLocation(view nav.ResolvedView) string {
	if view.Denial() == nav.DenialNeedsSignIn {
		return loginPath + "?" + redirectQueryParameter + "=" + url.QueryEscape(view.Route)
	}
	return defaultRoute
}

// writeEvent frames data as one SSE event, one data line per input line.
func writeEvent(buf *bytes.Buffer, name string, data []byte) {
	fmt.Fprintf(buf, "event: %s\n", name)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	wrote := false
	for sc.Scan() {
		fmt.Fprintf(buf, "data: %s\n", sc.Text())
		wrote = true
	}
	if !wrote {
		buf.WriteString("data: \n")
	}
	buf.WriteString("\n")
}
