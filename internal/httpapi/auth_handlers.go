package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"shoplane.org/internal/audit"
	"shoplane.org/internal/auth"
	"shoplane.org/internal/obs"
)

type loginRequest struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type grantRequest struct {
	UserID         string `json:"userId"`
	ResourceName   string `json:"resourceName"`
	PermissionType string `json:"permissionType"`
	Notes          string `json:"notes"`
}

type middlewareTokenRequest struct {
	Identity string   `json:"identity"`
	Scopes   []string `json:"scopes"`
}

type tokenPairResponse struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	TokenType        string `json:"tokenType"`
	ExpiresIn        int64  `json:"expiresIn"`
	RefreshExpiresIn int64  `json:"refreshExpiresIn,omitempty"`
	UserID           string `json:"userId,omitempty"`
	Identity         string `json:"identity,omitempty"`
	Role             string `json:"role,omitempty"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, user, err := a.svc.Login(r.Context(), req.Identity, req.Secret)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			obs.ObserveLogin("invalid")
		} else {
			obs.ObserveLogin("error")
		}
		a.handleAuthError(w, r, err)
		return
	}
	obs.ObserveLogin("ok")

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id":  user.ID,
		"identity": user.Email,
		"role":     user.Role.String(),
	})

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        a.svc.Codec().AccessTTL().Milliseconds(),
		RefreshExpiresIn: a.svc.Codec().RefreshTTL().Milliseconds(),
		UserID:           user.ID,
		Identity:         user.Email,
		Role:             user.Role.String(),
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, user, err := a.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"user_id":  user.ID,
		"identity": user.Email,
	})

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    a.svc.Codec().AccessTTL().Milliseconds(),
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	user, err := a.svc.FindUserByEmail(r.Context(), principal.Identity)
	if err != nil {
		// A valid token whose account has since been removed is just an
		// unauthenticated caller, not a missing resource.
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		a.handleAuthError(w, r, err)
		return
	}
	grants, err := a.svc.ActiveGrants(r.Context(), user.ID)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}

	permissions := make([]map[string]any, 0, len(grants))
	for _, g := range grants {
		permissions = append(permissions, map[string]any{
			"resource":   g.Resource,
			"permission": g.Permission,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":      user.ID,
		"identity":    user.Email,
		"role":        user.Role.String(),
		"permissions": permissions,
	})
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req grantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	grant, err := a.svc.GrantPermission(r.Context(), req.UserID, req.ResourceName, req.PermissionType, req.Notes)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.permission.grant", map[string]any{
		"permission_id": grant.ID,
		"user_id":       grant.UserID,
		"resource":      grant.Resource,
		"permission":    string(grant.Permission),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"permissionId": grant.ID,
	})
}

// handlePermissionResource serves /auth/permissions/{id}: GET treats the id
// as a user id and lists that user's active grants, DELETE treats it as a
// grant id and revokes it.
func (a *API) handlePermissionResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/auth/permissions/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		grants, err := a.svc.ActiveGrants(r.Context(), id)
		if err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		permissions := make([]map[string]any, 0, len(grants))
		for _, g := range grants {
			permissions = append(permissions, map[string]any{
				"permissionId": g.ID,
				"resource":     g.Resource,
				"permission":   g.Permission,
				"active":       g.Active,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"userId":      id,
			"permissions": permissions,
		})

	case http.MethodDelete:
		if err := a.svc.RevokePermission(r.Context(), id); err != nil {
			a.handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "auth.permission.revoke", map[string]any{
			"permission_id": id,
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "permission revoked",
		})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleMiddlewareToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req middlewareTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, _, err := a.svc.IssueMiddlewareToken(r.Context(), req.Identity, req.Scopes)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.middleware_token.issue", map[string]any{
		"identity": req.Identity,
		"scopes":   req.Scopes,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"tokenType": "Bearer",
		"scopes":    req.Scopes,
		"expiresIn": a.svc.Codec().AccessTTL().Milliseconds(),
	})
}

// handleLogout clears nothing server-side because there is nothing to
// clear: tokens are stateless and stay valid until expiry. The endpoint
// exists so clients have a uniform place to end a session.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "logged out",
	})
}

// handleAuthError maps service failures to HTTP statuses. Internal causes
// are logged; clients only ever see generic messages.
func (a *API) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid identity or secret")
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		writeError(w, r, http.StatusUnauthorized, "invalid or expired refresh token")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrDuplicateGrant):
		writeError(w, r, http.StatusConflict, "permission already granted")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "insufficient privileges")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, auth.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		obs.LogRequest(map[string]any{
			"level":      "error",
			"msg":        "auth operation failed",
			"error":      err.Error(),
			"path":       r.URL.Path,
			"request_id": RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
