package pg

import (
	"context"
	"database/sql"
	"errors"

	"shoplane.org/internal/auth"
)

var _ auth.GrantStore = (*GrantStore)(nil)

// GrantStore persists permission grants in user_permissions. The unique
// index on (user_id, resource_name, permission_type) backs the one-grant
// invariant.
type GrantStore struct {
	db *sql.DB
}

func (s *Store) Grants() *GrantStore { return &GrantStore{db: s.db} }

// Create inserts a grant, reactivating a soft-deleted row in place. The
// conditional upsert resolves concurrent duplicates in a single statement:
// exactly one caller wins, and a conflict with a live row yields no row
// back, which maps to ErrDuplicateGrant.
func (s *GrantStore) Create(ctx context.Context, g *auth.Grant) error {
	var updatedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		insert into user_permissions (id, user_id, resource_name, permission_type, active, notes, created_at)
		values ($1, $2, $3, $4, true, $5, $6)
		on conflict (user_id, resource_name, permission_type) do update
		set active = true, notes = excluded.notes, updated_at = now()
		where user_permissions.active = false
		returning id, created_at, updated_at
	`, g.ID, g.UserID, g.Resource, string(g.Permission), g.Notes, g.CreatedAt).
		Scan(&g.ID, &g.CreatedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrDuplicateGrant
	}
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrDuplicateGrant
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	g.Active = true
	if updatedAt.Valid {
		g.UpdatedAt = updatedAt.Time
	}
	return nil
}

// Deactivate flips a grant inactive and stamps updated_at. Rows are never
// deleted, preserving the audit trail. Deactivating an already-inactive
// grant is a no-op that still succeeds.
func (s *GrantStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update user_permissions
		set active = false, updated_at = now()
		where id = $1
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *GrantStore) ListActive(ctx context.Context, userID string) ([]auth.Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, resource_name, permission_type, active, notes, created_at, updated_at
		from user_permissions
		where user_id = $1 and active = true
		order by created_at asc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []auth.Grant
	for rows.Next() {
		var (
			g         auth.Grant
			perm      string
			notes     sql.NullString
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&g.ID, &g.UserID, &g.Resource, &perm, &g.Active, &notes, &g.CreatedAt, &updatedAt); err != nil {
			return nil, err
		}
		g.Permission = auth.PermissionType(perm)
		g.Notes = notes.String
		if updatedAt.Valid {
			g.UpdatedAt = updatedAt.Time
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (s *GrantStore) Has(ctx context.Context, userID, resource string, permission auth.PermissionType) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from user_permissions
			where user_id = $1 and resource_name = $2 and permission_type = $3 and active = true
		)
	`, userID, resource, string(permission)).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
