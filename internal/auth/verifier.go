package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/rbac"
)

// PasswordCost is the bcrypt cost for stored hashes.
const PasswordCost = 12

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// dummy returns a hash compared against for unknown emails so the response
// time does not reveal whether the account exists.
func dummy() []byte {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("rbacadmin-no-such-user"), PasswordCost)
	})
	return dummyHash
}

// Verifier checks email/password credentials.
type Verifier struct {
	users   principal.UserStore
	builder *rbac.Builder
}

// NewVerifier constructs a Verifier.
func NewVerifier(users principal.UserStore, builder *rbac.Builder) *Verifier {
	return &Verifier{users: users, builder: builder}
}

// Verify returns the identity or a *Failure. Infrastructure errors are
// returned as-is and are never a *Failure.
func (v *Verifier) Verify(ctx context.Context, email, password string) (Identity, error) {
	user, err := v.users.FindUserByEmail(ctx, principal.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummy(), []byte(password))
			return Identity{}, fail(ReasonInvalidCredentials)
		}
		return Identity{}, fmt.Errorf("auth: find user: %w", err)
	}
	switch {
	case user.IsDisabled:
		return Identity{}, fail(ReasonAccountDisabled)
	case user.IsDeleted:
		return Identity{}, fail(ReasonAccountDeleted)
	case user.EmailVerified == nil:
		return Identity{}, fail(ReasonEmailNotVerified)
	case !user.HasPassword():
		return Identity{}, fail(ReasonNoPasswordSet)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Identity{}, fail(ReasonInvalidCredentials)
	}
	snap, err := v.builder.Build(ctx, user.ID)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: build snapshot: %w", err)
	}
	return Identity{User: user, Snapshot: snap}, nil
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}
