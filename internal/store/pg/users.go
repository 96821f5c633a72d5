package pg

import (
	"context"
	"database/sql"
	"errors"

	"shoplane.org/internal/auth"
)

var _ auth.UserStore = (*UserStore)(nil)

// UserStore reads account rows.
type UserStore struct {
	db *sql.DB
}

func (s *Store) Users() *UserStore { return &UserStore{db: s.db} }

func (s *UserStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select id, email, password_hash, role, status, created_at, updated_at
		from users
		where id = $1
	`, id))
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select id, email, password_hash, role, status, created_at, updated_at
		from users
		where email = $1
	`, email))
}

func (s *UserStore) scanOne(row *sql.Row) (*auth.User, error) {
	var (
		u    auth.User
		role string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}
