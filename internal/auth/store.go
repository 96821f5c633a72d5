package auth

import "context"

// UserStore looks up account rows. Implementations must honor context
// deadlines; a timeout surfaces to callers as ErrUnavailable, not as an
// authentication failure.
type UserStore interface {
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// GrantStore persists permission grants. Create must resolve concurrent
// duplicate grants atomically: an existing active row is a conflict, an
// inactive row is reactivated in place.
type GrantStore interface {
	Create(ctx context.Context, g *Grant) error
	Deactivate(ctx context.Context, id string) error
	ListActive(ctx context.Context, userID string) ([]Grant, error)
	Has(ctx context.Context, userID, resource string, permission PermissionType) (bool, error)
}
