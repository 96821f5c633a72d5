package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"shoplane.org/internal/auth"
	"shoplane.org/internal/token"
)

type fakeUserStore struct {
	byID    map[string]*auth.User
	byEmail map[string]*auth.User
}

func newFakeUserStore(users ...*auth.User) *fakeUserStore {
	s := &fakeUserStore{byID: map[string]*auth.User{}, byEmail: map[string]*auth.User{}}
	for _, u := range users {
		s.byID[u.ID] = u
		s.byEmail[u.Email] = u
	}
	return s
}

func (s *fakeUserStore) Find(ctx context.Context, id string) (*auth.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	u, ok := s.byEmail[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

type fakeGrantStore struct {
	grants map[string]*auth.Grant
}

func newFakeGrantStore() *fakeGrantStore {
	return &fakeGrantStore{grants: map[string]*auth.Grant{}}
}

func (s *fakeGrantStore) Create(ctx context.Context, g *auth.Grant) error {
	for _, existing := range s.grants {
		if existing.UserID == g.UserID && existing.Resource == g.Resource && existing.Permission == g.Permission {
			if existing.Active {
				return auth.ErrDuplicateGrant
			}
			existing.Active = true
			existing.Notes = g.Notes
			*g = *existing
			return nil
		}
	}
	cp := *g
	s.grants[g.ID] = &cp
	return nil
}

func (s *fakeGrantStore) Deactivate(ctx context.Context, id string) error {
	g, ok := s.grants[id]
	if !ok {
		return auth.ErrNotFound
	}
	g.Active = false
	return nil
}

func (s *fakeGrantStore) ListActive(ctx context.Context, userID string) ([]auth.Grant, error) {
	var out []auth.Grant
	for _, g := range s.grants {
		if g.UserID == userID && g.Active {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *fakeGrantStore) Has(ctx context.Context, userID, resource string, permission auth.PermissionType) (bool, error) {
	for _, g := range s.grants {
		if g.Active && g.UserID == userID && g.Resource == resource && g.Permission == permission {
			return true, nil
		}
	}
	return false, nil
}

type apiHarness struct {
	api     *API
	handler http.Handler
	users   *fakeUserStore
	now     *time.Time
}

const testPassword = "s3cret-pass"

var (
	hashOnce sync.Once
	testHash string
)

// hashFor hashes testPassword once for the whole suite; bcrypt is slow
// enough that per-test hashing would dominate the run time.
func hashFor(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		hash, err := auth.HashPassword(testPassword)
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
		testHash = hash
	})
	if testHash == "" {
		t.Fatal("password hash unavailable")
	}
	return testHash
}

func newHarness(t *testing.T) *apiHarness {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	hash := hashFor(t)
	users := newFakeUserStore(
		&auth.User{ID: "user-admin", Email: "admin@example.com", PasswordHash: hash, Role: auth.RoleAdmin, Status: auth.UserStatusActive},
		&auth.User{ID: "user-alice", Email: "alice@example.com", PasswordHash: hash, Role: auth.RoleUser, Status: auth.UserStatusActive},
	)

	codec, err := token.NewCodec("httpapi-test-secret", token.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc, err := auth.NewService(users, newFakeGrantStore(), codec, auth.WithClock(clock))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	api := New(svc, DefaultPolicy(), ReadyProbe{}, "test")
	// Tests advance the shared clock through h.now; both the codec and the
	// service observe it through the closures above.
	return &apiHarness{api: api, handler: api.Handler(), users: users, now: &now}
}

func (h *apiHarness) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *apiHarness) login(t *testing.T, email string) tokenPairResponse {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/auth/login", "", loginRequest{Identity: email, Secret: testPassword})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	var pair tokenPairResponse
	decodeBody(t, rec, &pair)
	return pair
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
