package bearer

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const prefix = "Bearer "

// NewBearerMiddleware rejects requests whose Authorization header does not carry token.
// An empty token rejects every request.
func NewBearerMiddleware(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || !matches(r.Header.Get("Authorization"), token) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func matches(header, token string) bool {
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return false
	}
	got := strings.TrimSpace(header[len(prefix):])

	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}
