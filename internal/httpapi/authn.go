package httpapi

import (
	"net/http"
	"strings"

	"shoplane.org/internal/auth"
	"shoplane.org/internal/obs"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "
)

// bypassPaths skips token handling entirely for public endpoints; the
// request reaches its handler with no principal installed.
var bypassPaths = []string{
	"/auth/login",
	"/auth/refresh",
	"/healthz",
	"/readyz",
	"/metrics",
}

// withAuth is the single per-request authentication filter. It never
// rejects a request itself: a missing, malformed or undecodable token just
// leaves the request anonymous, and the policy layer decides whether
// anonymous is good enough. The principal it installs is request-scoped
// and gone when the request completes.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isBypassPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := extractBearerToken(r.Header.Get(authHeader))
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := a.svc.Codec().Decode(raw)
		if err != nil {
			// Not a data-integrity failure, just an unauthenticated caller.
			// Log the cause; the client sees only the policy's 401.
			obs.ObserveTokenDecode("invalid")
			obs.LogRequest(map[string]any{
				"level":      "warn",
				"msg":        "bearer token rejected",
				"error":      err.Error(),
				"path":       r.URL.Path,
				"request_id": RequestIDFromContext(r.Context()),
			})
			next.ServeHTTP(w, r)
			return
		}
		obs.ObserveTokenDecode("ok")

		ctx := auth.ContextWithPrincipal(r.Context(), auth.ResolvePrincipal(claims))
		ctx = auth.ContextWithToken(ctx, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken requires the exact "Bearer " prefix; anything else is
// treated as no token.
func extractBearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

func isBypassPath(path string) bool {
	for _, p := range bypassPaths {
		if path == p {
			return true
		}
	}
	return false
}
