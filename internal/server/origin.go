package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// newCheckOrigin returns the WebSocket origin check. Empty origins
// (non-browser clients), obs:// origins (OBS browser sources), same-host
// origins and configured origins are allowed. A "*" entry allows everything.
// In development localhost origins are additionally allowed.
func newCheckOrigin(allowed []string, isDevelopment bool) func(r *http.Request) bool {
	allowAll := false
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		allowedSet[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		if allowAll || origin == "" || strings.HasPrefix(origin, "obs://") {
			return true
		}

		if _, ok := allowedSet[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err == nil && u.Host == r.Host {
			return true
		}

		if isDevelopment && err == nil && (u.Hostname() == "localhost" || u.Hostname() == "127.0.0.1") {
			return true
		}

		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}
