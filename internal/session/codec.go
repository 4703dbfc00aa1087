// Package session issues and decodes signed session tokens. Decoding always
// re-resolves the principal so embedded grants are never older than the store.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/rbac"
)

var (
	// ErrInvalidToken covers every token rejection: bad signature, expiry,
	// unknown or inactive subject, revocation.
	ErrInvalidToken = errors.New("session: invalid token")
	// ErrBackendUnavailable wraps failures of the revocation store.
	ErrBackendUnavailable = errors.New("session: backend unavailable")
)

// Claims is the token payload.
type Claims struct {
	jwt.RegisteredClaims
	Email       string         `json:"email"`
	Name        string         `json:"name,omitempty"`
	Role        string         `json:"role"`
	Permissions []string       `json:"permissions"`
	Pages       []rbac.PageRef `json:"pages"`
}

// UserID parses the numeric subject.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Snapshot returns the authorization view carried by the claims.
func (c *Claims) Snapshot() rbac.Snapshot {
	return rbac.Snapshot{Role: c.Role, Permissions: c.Permissions, Pages: c.Pages}
}

// Token is a freshly issued session token.
type Token struct {
	Raw       string
	ID        string
	ExpiresAt time.Time
}

// Resolver returns a user and current snapshot, rejecting inactive accounts.
type Resolver interface {
	Resolve(ctx context.Context, userID int64) (rbac.Principal, error)
}

// Codec signs and verifies HS256 session tokens.
type Codec struct {
	secret   []byte
	issuer   string
	ttl      time.Duration
	resolver Resolver
	revoker  Revoker
	now      func() time.Time
}

// Option customises a Codec.
type Option func(*Codec)

// WithRevoker enables the revocation denylist.
func WithRevoker(r Revoker) Option {
	return func(c *Codec) { c.revoker = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec constructs a Codec.
func NewCodec(secret, issuer string, ttl time.Duration, resolver Resolver, opts ...Option) *Codec {
	c := &Codec{
		secret:   []byte(secret),
		issuer:   issuer,
		ttl:      ttl,
		resolver: resolver,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the nominal token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for the user carrying the given snapshot.
func (c *Codec) Issue(user principal.User, snap rbac.Snapshot) (Token, error) {
	now := c.now()
	expires := now.Add(c.ttl)
	id := uuid.NewString()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    c.issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email:       user.Email,
		Name:        user.Name,
		Role:        snap.Role,
		Permissions: snap.Permissions,
		Pages:       snap.Pages,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return Token{}, fmt.Errorf("session: sign token: %w", err)
	}
	return Token{Raw: raw, ID: id, ExpiresAt: expires}, nil
}

// Decode verifies the token and replaces its identity and grant claims with
// the current values from the store.
func (c *Codec) Decode(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	if c.revoker != nil {
		revoked, err := c.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("session: check revocation: %w: %w", ErrBackendUnavailable, err)
		}
		if revoked {
			return nil, ErrInvalidToken
		}
	}

	p, err := c.resolver.Resolve(ctx, userID)
	if err != nil {
		if errors.Is(err, rbac.ErrUnknownPrincipal) || errors.Is(err, rbac.ErrInactivePrincipal) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("session: refresh claims: %w", err)
	}
	claims.Email = p.User.Email
	claims.Name = p.User.Name
	claims.Role = p.Snapshot.Role
	claims.Permissions = p.Snapshot.Permissions
	claims.Pages = p.Snapshot.Pages
	return claims, nil
}

// Revoke denylists the token id until its expiry.
func (c *Codec) Revoke(ctx context.Context, claims *Claims) error {
	if c.revoker == nil || claims == nil || claims.ID == "" {
		return nil
	}
	until := c.now().Add(c.ttl)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	return c.revoker.Revoke(ctx, claims.ID, until)
}
