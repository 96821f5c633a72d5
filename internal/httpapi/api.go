package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"shoplane.org/internal/auth"
	"shoplane.org/internal/obs"
)

// ReadyProbe checks readiness (a DB ping when a handle is configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the authentication service.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	policy     *Policy
	readyProbe ReadyProbe
	version    string
}

// DefaultPolicy is the one route authorization table for this deployment.
// Rules are an explicit ordered list so precedence is auditable; anything
// unlisted requires authentication.
func DefaultPolicy() *Policy {
	return NewPolicy(
		Rule{http.MethodPost, "/auth/login", PermitAll()},
		Rule{http.MethodPost, "/auth/refresh", PermitAll()},
		Rule{http.MethodPost, "/auth/logout", PermitAll()},
		Rule{http.MethodGet, "/healthz", PermitAll()},
		Rule{http.MethodGet, "/readyz", PermitAll()},
		Rule{http.MethodGet, "/metrics", PermitAll()},
		Rule{http.MethodGet, "/auth/me", RequireAuthenticated()},
		Rule{http.MethodPost, "/auth/permissions", RequireRole(auth.RoleAdmin)},
		Rule{http.MethodGet, "/auth/permissions/*", RequireAuthenticated()},
		Rule{http.MethodDelete, "/auth/permissions/*", RequireRole(auth.RoleAdmin)},
		Rule{http.MethodPost, "/auth/middleware-token", RequireRole(auth.RoleAdmin)},
	)
}

// New wires routes and the authorization policy.
func New(svc *auth.Service, policy *Policy, rp ReadyProbe, version string) *API {
	if policy == nil {
		policy = DefaultPolicy()
	}
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		policy:     policy,
		readyProbe: rp,
		version:    version,
	}

	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/auth/me", a.handleMe)
	a.mux.HandleFunc("/auth/permissions", a.handlePermissions)
	a.mux.HandleFunc("/auth/permissions/", a.handlePermissionResource)
	a.mux.HandleFunc("/auth/middleware-token", a.handleMiddlewareToken)
	a.mux.HandleFunc("/auth/logout", a.handleLogout)

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler composes the full middleware chain. This is the only filter-chain
// definition in the codebase: the token filter always runs, and always runs
// before the policy — a second competing chain is exactly the misordering
// that silently disables authentication.
func (a *API) Handler() http.Handler {
	h := a.policy.Middleware(a.mux)
	h = a.withAuth(h)
	h = RateLimit(h, 20, 10)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "shoplane-auth",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
