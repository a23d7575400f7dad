package portal

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const loginPath = "/login"

var publicPrefixes = []string{"/static/", "/api/"}

var publicPaths = map[string]bool{
	loginPath:  true,
	"/healthz": true,
}

// IsPublic reports whether the path is served without a session.
// API routes authenticate on their own.
func IsPublic(path string) bool {
	if publicPaths[path] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Gate guards every non-public route. Requests without a valid session are redirected
// to the login page; a stale cookie is cleared on the way. Each request is validated
// against the store, nothing is cached.
func Gate(log *slog.Logger, sessions SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token := sessions.TokenFromRequest(r)
			if token == "" {
				redirectToLogin(w, r)
				return
			}

			client, err := sessions.Validate(r.Context(), token)
			if err != nil {
				log.DebugContext(r.Context(), "session rejected by gate", "path", r.URL.Path, "error", err)
				sessions.ClearCookie(w)
				redirectToLogin(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), client)))
		})
	}
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := loginPath
	if next := r.URL.RequestURI(); next != "" && next != "/" {
		target += "?next=" + url.QueryEscape(next)
	}
	http.Redirect(w, r, target, http.StatusFound)
}
