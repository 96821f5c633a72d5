package httpapi

import (
	"net/http"
	"strings"

	"shoplane.org/internal/auth"
	"shoplane.org/internal/obs"
)

// Requirement is what a route demands from the caller. The variants are a
// closed set so every rule's effect is auditable in one table.
type Requirement interface {
	check(principal auth.Principal, authenticated bool) *denial
}

type denial struct {
	status int
	reason string
}

type permitAll struct{}

func (permitAll) check(auth.Principal, bool) *denial { return nil }

type requireAuthenticated struct{}

func (requireAuthenticated) check(_ auth.Principal, authenticated bool) *denial {
	if !authenticated {
		return &denial{status: http.StatusUnauthorized, reason: "unauthenticated"}
	}
	return nil
}

type requireAnyRole struct {
	roles []auth.Role
}

func (r requireAnyRole) check(principal auth.Principal, authenticated bool) *denial {
	if !authenticated {
		return &denial{status: http.StatusUnauthorized, reason: "unauthenticated"}
	}
	if !principal.HasAnyRole(r.roles...) {
		return &denial{status: http.StatusForbidden, reason: "missing_role"}
	}
	return nil
}

// PermitAll lets every request through, authenticated or not.
func PermitAll() Requirement { return permitAll{} }

// RequireAuthenticated demands a valid principal, any role.
func RequireAuthenticated() Requirement { return requireAuthenticated{} }

// RequireRole demands a valid principal carrying the role.
func RequireRole(role auth.Role) Requirement { return requireAnyRole{roles: []auth.Role{role}} }

// RequireAnyRole demands a valid principal carrying at least one role.
func RequireAnyRole(roles ...auth.Role) Requirement { return requireAnyRole{roles: roles} }

// Rule binds a method and path pattern to a requirement. Method "" or "*"
// matches any method. A pattern either matches the path exactly or, with a
// trailing "/*", matches any path under the prefix.
type Rule struct {
	Method  string
	Pattern string
	Require Requirement
}

func (r Rule) matches(method, path string) bool {
	if r.Method != "" && r.Method != "*" && r.Method != method {
		return false
	}
	if prefix, ok := strings.CutSuffix(r.Pattern, "/*"); ok {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return path == r.Pattern
}

// specificity orders competing matches: longer patterns are more specific,
// and an exact pattern beats a wildcard of the same literal length.
func (r Rule) specificity() int {
	if prefix, ok := strings.CutSuffix(r.Pattern, "/*"); ok {
		return 2 * len(prefix)
	}
	return 2*len(r.Pattern) + 1
}

// Policy is the single ordered authorization table for a deployment.
// Evaluation picks the most specific matching rule; ties fall to
// declaration order. No match defaults to RequireAuthenticated, so an
// unlisted route is never accidentally public.
type Policy struct {
	rules []Rule
}

// NewPolicy builds a policy from an ordered rule list.
func NewPolicy(rules ...Rule) *Policy {
	return &Policy{rules: rules}
}

// Evaluate returns the requirement governing a request.
func (p *Policy) Evaluate(method, path string) Requirement {
	var (
		best     Requirement
		bestSpec = -1
	)
	for _, rule := range p.rules {
		if !rule.matches(method, path) {
			continue
		}
		if spec := rule.specificity(); spec > bestSpec {
			best = rule.Require
			bestSpec = spec
		}
	}
	if best == nil {
		return RequireAuthenticated()
	}
	return best
}

// Middleware enforces the policy. It runs strictly after the token filter:
// by the time a request gets here its principal, if any, is already
// installed. Denials are 401 or 403, never 500.
func (p *Policy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		principal, authenticated := auth.PrincipalFromContext(r.Context())
		if d := p.Evaluate(r.Method, r.URL.Path).check(principal, authenticated); d != nil {
			obs.ObservePolicyDenial(d.reason)
			if d.status == http.StatusUnauthorized {
				w.Header().Set("WWW-Authenticate", `Bearer realm="shoplane"`)
				writeError(w, r, d.status, "authentication required")
			} else {
				writeError(w, r, d.status, "insufficient privileges")
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}
