package auth

import (
	"strings"
	"time"
)

// User is an account row. Only the fields the auth core needs are modeled;
// business entities reference users by id.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// PermissionType enumerates the actions a grant can allow on a resource.
type PermissionType string

const (
	PermissionCreate PermissionType = "CREATE"
	PermissionRead   PermissionType = "READ"
	PermissionUpdate PermissionType = "UPDATE"
	PermissionDelete PermissionType = "DELETE"
	PermissionExport PermissionType = "EXPORT"
	PermissionImport PermissionType = "IMPORT"
	PermissionAdmin  PermissionType = "ADMIN"
)

// ParsePermissionType normalizes and validates a permission string.
func ParsePermissionType(raw string) (PermissionType, bool) {
	switch p := PermissionType(strings.ToUpper(strings.TrimSpace(raw))); p {
	case PermissionCreate, PermissionRead, PermissionUpdate, PermissionDelete,
		PermissionExport, PermissionImport, PermissionAdmin:
		return p, true
	default:
		return "", false
	}
}

// Grant is a standing per-user, per-resource permission independent of role.
// At most one grant exists per (user, resource, permission) tuple; revoking
// flips Active off rather than deleting, preserving the audit trail.
type Grant struct {
	ID         string         `json:"permissionId"`
	UserID     string         `json:"userId"`
	Resource   string         `json:"resource"`
	Permission PermissionType `json:"permission"`
	Active     bool           `json:"active"`
	Notes      string         `json:"notes,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt,omitempty"`
}
