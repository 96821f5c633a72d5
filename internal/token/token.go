package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind discriminates what a token may be used for. The kind claim is only
// trusted after the signature has been verified.
type Kind string

const (
	KindAccess     Kind = "ACCESS"
	KindRefresh    Kind = "REFRESH"
	KindMiddleware Kind = "MIDDLEWARE"
)

const (
	defaultIssuer     = "shoplane"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Decode failure taxonomy. Callers branch on these: an expired access token
// prompts a refresh, a bad signature forces re-login.
var (
	ErrInvalidSignature = errors.New("token: invalid signature")
	ErrMalformed        = errors.New("token: malformed")
	ErrExpired          = errors.New("token: expired")
	ErrUnsupported      = errors.New("token: unsupported format")
)

// Claims is the signed payload carried by every token. Authorities are only
// present on ACCESS tokens, scopes only on MIDDLEWARE tokens.
type Claims struct {
	Authorities []string `json:"authorities,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
	Kind        Kind     `json:"tokenType"`
	jwt.RegisteredClaims
}

// Codec signs and verifies tokens with a process-wide HS512 key. The key is
// loaded once at startup and never mutated; rotation happens via redeploy.
// A Codec is stateless and safe for concurrent use.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures Codec behavior.
type Option func(*Codec)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) Option {
	return func(c *Codec) {
		if strings.TrimSpace(issuer) != "" {
			c.issuer = strings.TrimSpace(issuer)
		}
	}
}

// WithAccessTTL configures access and middleware token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec around the shared signing secret.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token: signing secret is required")
	}
	c := &Codec{
		secret:     []byte(secret),
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL reports the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess signs a short-lived access token carrying the subject's
// current authorities.
func (c *Codec) IssueAccess(subject string, authorities []string) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("token: subject is required")
	}
	if len(authorities) == 0 {
		return "", time.Time{}, errors.New("token: access token requires authorities")
	}
	return c.sign(Claims{Authorities: authorities, Kind: KindAccess}, subject, c.accessTTL)
}

// IssueRefresh signs a long-lived refresh token carrying only the subject.
func (c *Codec) IssueRefresh(subject string) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("token: subject is required")
	}
	return c.sign(Claims{Kind: KindRefresh}, subject, c.refreshTTL)
}

// IssueMiddleware signs a scope-bearing token for external systems that
// understand scopes rather than roles. Same lifetime as an access token.
func (c *Codec) IssueMiddleware(subject string, scopes []string) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("token: subject is required")
	}
	if len(scopes) == 0 {
		return "", time.Time{}, errors.New("token: middleware token requires scopes")
	}
	return c.sign(Claims{Scopes: scopes, Kind: KindMiddleware}, subject, c.accessTTL)
}

func (c *Codec) sign(claims Claims, subject string, ttl time.Duration) (string, time.Time, error) {
	now := c.now().UTC()
	expiresAt := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Decode verifies the signature and expiry of a token and returns its
// claims. The signature is checked before any claim (including the kind) is
// trusted. Kind-specific payloads are not validated here: a verified access
// token without authorities decodes fine and yields a role-less principal
// downstream. Decode is pure: no I/O, no mutation.
func (c *Codec) Decode(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMalformed
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, c.keyFor,
		jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, mapParseError(err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidSignature
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrMalformed
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrMalformed
	}
	if !claims.ExpiresAt.Time.After(claims.IssuedAt.Time) {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (c *Codec) keyFor(t *jwt.Token) (any, error) {
	if t.Method != jwt.SigningMethodHS512 {
		return nil, ErrUnsupported
	}
	return c.secret, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrUnsupported):
		return ErrUnsupported
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrUnsupported
	default:
		return ErrMalformed
	}
}
