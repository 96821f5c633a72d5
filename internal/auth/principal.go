package auth

import (
	"shoplane.org/internal/token"
)

// Principal is the authenticated caller for the lifetime of one request.
// It is built fresh from a verified token on every request and never
// persisted, which is what keeps the service stateless.
type Principal struct {
	Identity    string
	Authorities []string
	Claims      map[string]any
}

// ResolvePrincipal turns verified claims into a principal. The authorities
// claim is mapped verbatim: no inference, no default role. A token without
// authorities resolves to an authenticated but role-less principal, and
// role-gated routes deny it downstream.
func ResolvePrincipal(claims *token.Claims) Principal {
	p := Principal{
		Identity: claims.Subject,
		Claims: map[string]any{
			"sub":       claims.Subject,
			"tokenType": string(claims.Kind),
			"jti":       claims.ID,
		},
	}
	if len(claims.Authorities) > 0 {
		p.Authorities = append([]string(nil), claims.Authorities...)
		p.Claims["authorities"] = p.Authorities
	}
	if len(claims.Scopes) > 0 {
		p.Claims["scopes"] = append([]string(nil), claims.Scopes...)
	}
	if claims.IssuedAt != nil {
		p.Claims["iat"] = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		p.Claims["exp"] = claims.ExpiresAt.Unix()
	}
	return p
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role Role) bool {
	for _, a := range p.Authorities {
		if a == string(role) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the principal carries at least one of the roles.
func (p Principal) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if p.HasRole(role) {
			return true
		}
	}
	return false
}
