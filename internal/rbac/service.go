package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/rbacadmin/internal/principal"
)

var (
	// ErrUnknownPrincipal indicates the user id no longer resolves.
	ErrUnknownPrincipal = errors.New("rbac: unknown principal")
	// ErrInactivePrincipal indicates the user is disabled or soft-deleted.
	ErrInactivePrincipal = errors.New("rbac: inactive principal")
)

// Builder derives authorization snapshots straight from the principal store.
// Results are never cached: every call reflects the store as of that call.
type Builder struct {
	store principal.AuthorizationLoader
}

// NewBuilder constructs a Builder backed by the provided loader.
func NewBuilder(store principal.AuthorizationLoader) *Builder {
	return &Builder{store: store}
}

// Build returns the current snapshot for the user.
func (b *Builder) Build(ctx context.Context, userID int64) (Snapshot, error) {
	auth, err := b.load(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return SnapshotFromAuthorization(auth), nil
}

// Resolve returns the user and its current snapshot, rejecting inactive accounts.
func (b *Builder) Resolve(ctx context.Context, userID int64) (Principal, error) {
	auth, err := b.load(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	if !auth.User.Active() {
		return Principal{}, ErrInactivePrincipal
	}
	return Principal{User: auth.User, Snapshot: SnapshotFromAuthorization(auth)}, nil
}

func (b *Builder) load(ctx context.Context, userID int64) (principal.Authorization, error) {
	auth, err := b.store.LoadAuthorization(ctx, userID)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return principal.Authorization{}, ErrUnknownPrincipal
		}
		return principal.Authorization{}, fmt.Errorf("rbac: load authorization: %w", err)
	}
	return auth, nil
}
