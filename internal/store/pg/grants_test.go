package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"shoplane.org/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewStore(db), mock
}

func TestGrantCreate(t *testing.T) {
	store, mock := newMockStore(t)
	createdAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("insert into user_permissions").
		WithArgs("grant-1", "user-1", "PRODUCTS", "READ", "seasonal", createdAt).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("grant-1", createdAt, nil))

	g := &auth.Grant{
		ID:         "grant-1",
		UserID:     "user-1",
		Resource:   "PRODUCTS",
		Permission: auth.PermissionRead,
		Notes:      "seasonal",
		CreatedAt:  createdAt,
	}
	if err := store.Grants().Create(context.Background(), g); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !g.Active {
		t.Fatal("created grant should be active")
	}
	if !g.UpdatedAt.IsZero() {
		t.Fatalf("fresh insert should leave UpdatedAt zero, got %v", g.UpdatedAt)
	}
}

func TestGrantCreateDuplicateActive(t *testing.T) {
	store, mock := newMockStore(t)

	// A conflict against a live row matches no row in the conditional upsert,
	// so the statement returns nothing.
	mock.ExpectQuery("insert into user_permissions").
		WillReturnError(sql.ErrNoRows)

	g := &auth.Grant{ID: "grant-1", UserID: "user-1", Resource: "PRODUCTS", Permission: auth.PermissionRead}
	if err := store.Grants().Create(context.Background(), g); !errors.Is(err, auth.ErrDuplicateGrant) {
		t.Fatalf("expected ErrDuplicateGrant, got %v", err)
	}
}

func TestGrantCreateReactivatesInactiveRow(t *testing.T) {
	store, mock := newMockStore(t)
	createdAt := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	updatedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("insert into user_permissions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("grant-old", createdAt, updatedAt))

	g := &auth.Grant{ID: "grant-new", UserID: "user-1", Resource: "PRODUCTS", Permission: auth.PermissionRead, CreatedAt: updatedAt}
	if err := store.Grants().Create(context.Background(), g); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if g.ID != "grant-old" {
		t.Fatalf("reactivation should keep the original row id, got %s", g.ID)
	}
	if !g.CreatedAt.Equal(createdAt) || !g.UpdatedAt.Equal(updatedAt) {
		t.Fatalf("timestamps: created=%v updated=%v", g.CreatedAt, g.UpdatedAt)
	}
}

func TestGrantCreateConstraintErrors(t *testing.T) {
	cases := []struct {
		name string
		code string
		want error
	}{
		{"unique violation", pgErrUniqueViolation, auth.ErrDuplicateGrant},
		{"unknown user", pgErrForeignKeyViolation, auth.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			mock.ExpectQuery("insert into user_permissions").
				WillReturnError(&pgconn.PgError{Code: tc.code})

			g := &auth.Grant{ID: "grant-1", UserID: "user-1", Resource: "PRODUCTS", Permission: auth.PermissionRead}
			if err := store.Grants().Create(context.Background(), g); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestGrantDeactivate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update user_permissions").
		WithArgs("grant-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Grants().Deactivate(context.Background(), "grant-1"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
}

func TestGrantDeactivateUnknownID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update user_permissions").
		WithArgs("no-such-grant").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Grants().Deactivate(context.Background(), "no-such-grant"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGrantListActive(t *testing.T) {
	store, mock := newMockStore(t)
	createdAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("select id, user_id, resource_name").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "resource_name", "permission_type", "active", "notes", "created_at", "updated_at"}).
			AddRow("grant-1", "user-1", "PRODUCTS", "READ", true, "seasonal", createdAt, nil).
			AddRow("grant-2", "user-1", "ORDERS", "EXPORT", true, nil, createdAt.Add(time.Hour), createdAt.Add(2*time.Hour)))

	grants, err := store.Grants().ListActive(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("grants: %d", len(grants))
	}
	if grants[0].Permission != auth.PermissionRead || grants[0].Notes != "seasonal" {
		t.Fatalf("first grant: %+v", grants[0])
	}
	if grants[1].Notes != "" {
		t.Fatalf("null notes should scan empty, got %q", grants[1].Notes)
	}
	if grants[1].UpdatedAt.IsZero() {
		t.Fatal("second grant should carry updated_at")
	}
}

func TestGrantHas(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select exists").
		WithArgs("user-1", "PRODUCTS", "READ").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.Grants().Has(context.Background(), "user-1", "PRODUCTS", auth.PermissionRead)
	if err != nil || !ok {
		t.Fatalf("Has: ok=%v err=%v", ok, err)
	}
}
