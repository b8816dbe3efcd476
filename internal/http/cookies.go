package httpx

import (
	"net/http"
	"strings"
	"time"
)

// cookieOptions groups the attributes that vary between the cookies we set.
type cookieOptions struct {
	Name     string
	Value    string
	Domain   string
	MaxAge   int
	SameSite http.SameSite
	// Script marks cookies the page must read from JavaScript.
	Script bool
}

// isSecureRequest reports whether the request arrived over HTTPS, directly or via a proxy.
// Handles comma-separated X-Forwarded-Proto values.
func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	for _, proto := range strings.Split(r.Header.Get("X-Forwarded-Proto"), ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return false
}

func setCookie(w http.ResponseWriter, r *http.Request, o cookieOptions) {
	sameSite := o.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     o.Name,
		Value:    o.Value,
		Path:     "/",
		Domain:   o.Domain,
		HttpOnly: !o.Script,
		Secure:   isSecureRequest(r),
		SameSite: sameSite,
		MaxAge:   o.MaxAge,
	})
}

// clearCookie expires a cookie, mirroring the attributes used when setting it so every
// browser drops it.
func clearCookie(w http.ResponseWriter, r *http.Request, o cookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     o.Name,
		Value:    "",
		Path:     "/",
		Domain:   o.Domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}
