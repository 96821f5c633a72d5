package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shoplane.org/internal/ids"
	"shoplane.org/internal/token"
)

// Service issues credentials and manages permission grants. Login and
// refresh are fully stateless: no session rows, no server-side token state.
// The known cost is that a leaked refresh token stays valid until it
// expires; there is no revocation list in this design.
type Service struct {
	users  UserStore
	grants GrantStore
	codec  *token.Codec
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the authentication service.
func NewService(users UserStore, grants GrantStore, codec *token.Codec, opts ...ServiceOption) (*Service, error) {
	if users == nil || grants == nil {
		return nil, errors.New("auth: user and grant stores are required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	s := &Service{users: users, grants: grants, codec: codec, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Codec exposes the token codec for the request filter.
func (s *Service) Codec() *token.Codec { return s.codec }

// TokenPair is the credential set issued at login. The access token is
// reissued alone on refresh; the refresh token is returned unchanged.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Login verifies credentials and issues an access/refresh token pair
// sharing one issuance instant. Unknown users, wrong passwords and disabled
// accounts are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidCredentials
		}
		return TokenPair{}, nil, storeErr(err)
	}
	if user.Status != UserStatusActive {
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	accessToken, accessExp, err := s.codec.IssueAccess(user.Email, []string{user.Role.String()})
	if err != nil {
		return TokenPair{}, nil, err
	}
	refreshToken, refreshExp, err := s.codec.IssueRefresh(user.Email)
	if err != nil {
		return TokenPair{}, nil, err
	}
	pair := TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}
	return pair, user, nil
}

// Refresh exchanges a valid refresh token for a fresh access token. The
// user's role is reread from the store: roles may have changed since the
// refresh token was issued, and stale claims are never trusted. The refresh
// token itself is returned unchanged, keeping its original absolute expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, *User, error) {
	claims, err := s.codec.Decode(refreshToken)
	if err != nil {
		// Expired and forged tokens collapse to one failure: either way the
		// caller has to log in again.
		return TokenPair{}, nil, ErrInvalidRefreshToken
	}
	if claims.Kind != token.KindRefresh {
		return TokenPair{}, nil, ErrInvalidRefreshToken
	}
	user, err := s.users.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidRefreshToken
		}
		return TokenPair{}, nil, storeErr(err)
	}
	if user.Status != UserStatusActive {
		return TokenPair{}, nil, ErrInvalidRefreshToken
	}

	accessToken, accessExp, err := s.codec.IssueAccess(user.Email, []string{user.Role.String()})
	if err != nil {
		return TokenPair{}, nil, err
	}
	pair := TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: claims.ExpiresAt.Time,
	}
	return pair, user, nil
}

// IssueMiddlewareToken signs a scope-bearing token for external systems.
// Admin gating happens at the route policy; the service only validates
// input.
func (s *Service) IssueMiddlewareToken(ctx context.Context, identity string, scopes []string) (string, time.Time, error) {
	identity = strings.TrimSpace(strings.ToLower(identity))
	if identity == "" {
		return "", time.Time{}, fmt.Errorf("%w: identity is required", ErrInvalidInput)
	}
	scopes = dedupeStrings(scopes)
	if len(scopes) == 0 {
		return "", time.Time{}, fmt.Errorf("%w: at least one scope is required", ErrInvalidInput)
	}
	if _, err := s.users.FindByEmail(ctx, identity); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrNotFound
		}
		return "", time.Time{}, storeErr(err)
	}
	return s.codec.IssueMiddleware(identity, scopes)
}

// GrantPermission creates (or reactivates) a resource grant for a user.
// A live duplicate is rejected with ErrDuplicateGrant.
func (s *Service) GrantPermission(ctx context.Context, userID, resource, permission, notes string) (*Grant, error) {
	userID = strings.TrimSpace(userID)
	resource = strings.ToUpper(strings.TrimSpace(resource))
	if userID == "" || resource == "" {
		return nil, fmt.Errorf("%w: userId and resourceName are required", ErrInvalidInput)
	}
	perm, ok := ParsePermissionType(permission)
	if !ok {
		return nil, fmt.Errorf("%w: unknown permission type %q", ErrInvalidInput, permission)
	}
	if _, err := s.users.Find(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr(err)
	}
	grant := &Grant{
		ID:         ids.New(),
		UserID:     userID,
		Resource:   resource,
		Permission: perm,
		Active:     true,
		Notes:      strings.TrimSpace(notes),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.grants.Create(ctx, grant); err != nil {
		if errors.Is(err, ErrDuplicateGrant) {
			return nil, ErrDuplicateGrant
		}
		return nil, storeErr(err)
	}
	return grant, nil
}

// RevokePermission soft-deletes a grant. Revoking an already-inactive grant
// succeeds quietly; an unknown id is ErrNotFound.
func (s *Service) RevokePermission(ctx context.Context, grantID string) error {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return fmt.Errorf("%w: permissionId is required", ErrInvalidInput)
	}
	if err := s.grants.Deactivate(ctx, grantID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return storeErr(err)
	}
	return nil
}

// ActiveGrants lists the user's active grants.
func (s *Service) ActiveGrants(ctx context.Context, userID string) ([]Grant, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	grants, err := s.grants.ListActive(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return grants, nil
}

// HasPermission reports whether the user holds an active grant for the
// resource/action pair. Handlers call this for checks beyond role gates.
func (s *Service) HasPermission(ctx context.Context, userID, resource string, permission PermissionType) (bool, error) {
	ok, err := s.grants.Has(ctx, userID, strings.ToUpper(strings.TrimSpace(resource)), permission)
	if err != nil {
		return false, storeErr(err)
	}
	return ok, nil
}

// FindUserByEmail resolves a principal identity to its account row.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr(err)
	}
	return user, nil
}

// storeErr classifies storage failures. Deadline and cancellation errors are
// retryable service errors, never authentication failures.
func storeErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
