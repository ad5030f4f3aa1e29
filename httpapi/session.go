package httpapi

import (
	"net/http"
	"strings"
)

// sessionID returns the client session id carried by the cookie, if any.
func (h *Handler) sessionID(r *http.Request) string {
	cookie, err := r.Cookie(h.cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

// ensureSession reuses the cookie session or issues a new one. The state
// stored against it must survive the round trip to the provider dialog, so
// the cookie is lax rather than strict.
func (h *Handler) ensureSession(w http.ResponseWriter, r *http.Request) string {
	if existing := h.sessionID(r); existing != "" {
		return existing
	}
	id := h.newSessionID()
	cookie := &http.Cookie{
		Name:     h.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if h.sessionTTL > 0 {
		cookie.MaxAge = int(h.sessionTTL.Seconds())
	}
	http.SetCookie(w, cookie)
	return id
}
