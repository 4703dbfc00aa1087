package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/rbacadmin/internal/auth"
	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/rbac"
)

// Store is the principal store subset used for user management.
type Store interface {
	principal.UserStore
	principal.AuthorizationLoader
	FindRoleByID(ctx context.Context, id int64) (principal.Role, error)
}

// Service handles user business logic.
type Service struct {
	store   Store
	builder *rbac.Builder
	now     func() time.Time
}

// NewService builds Service instance.
func NewService(store Store) *Service {
	return &Service{store: store, builder: rbac.NewBuilder(store), now: time.Now}
}

// List returns one page of users.
func (s *Service) List(ctx context.Context, filter principal.ListFilter) ([]User, int, error) {
	rows, total, err := s.store.ListUsers(ctx, filter.Normalize())
	if err != nil {
		return nil, 0, err
	}
	out := make([]User, 0, len(rows))
	for _, u := range rows {
		out = append(out, FromPrincipal(u))
	}
	return out, total, nil
}

// Get returns a user with its resolved role and permissions.
func (s *Service) Get(ctx context.Context, id int64) (Detail, error) {
	user, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	snap, err := s.builder.Build(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return Detail{User: FromPrincipal(user), Role: snap.Role, Permissions: snap.Permissions}, nil
}

// Create adds a password account.
func (s *Service) Create(ctx context.Context, in CreateInput) (User, error) {
	if in.RoleID != nil {
		if _, err := s.store.FindRoleByID(ctx, *in.RoleID); err != nil {
			return User{}, fmt.Errorf("users: role %d: %w", *in.RoleID, err)
		}
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	u, err := s.store.CreateUser(ctx, principal.NewUser{
		Email:         principal.NormalizeEmail(in.Email),
		Name:          strings.TrimSpace(in.Name),
		PasswordHash:  hash,
		EmailVerified: &now,
		RoleID:        in.RoleID,
	})
	if err != nil {
		return User{}, err
	}
	return FromPrincipal(u), nil
}

// Update changes display attributes.
func (s *Service) Update(ctx context.Context, id int64, name, username *string) (User, error) {
	update := principal.ProfileUpdate{Name: name}
	if username != nil {
		trimmed := strings.TrimSpace(*username)
		update.Username = &trimmed
	}
	u, err := s.store.UpdateProfile(ctx, id, update)
	if err != nil {
		return User{}, err
	}
	return FromPrincipal(u), nil
}

// SetDisabled toggles the disabled flag. Actors cannot disable themselves.
func (s *Service) SetDisabled(ctx context.Context, actorID, id int64, disabled bool) (User, error) {
	if disabled && actorID == id {
		return User{}, ErrSelfAction
	}
	u, err := s.store.SetUserDisabled(ctx, id, disabled)
	if err != nil {
		return User{}, err
	}
	return FromPrincipal(u), nil
}

// SetDeleted soft-deletes or restores a user. Actors cannot delete themselves.
func (s *Service) SetDeleted(ctx context.Context, actorID, id int64, deleted bool) (User, error) {
	if deleted && actorID == id {
		return User{}, ErrSelfAction
	}
	u, err := s.store.SetUserDeleted(ctx, id, deleted, s.now().UTC())
	if err != nil {
		return User{}, err
	}
	return FromPrincipal(u), nil
}

// Delete removes the user row.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return ErrSelfAction
	}
	return s.store.DeleteUser(ctx, id)
}

// AssignRole points the user at a role. The change is visible on the user's
// next request because snapshots are rebuilt from the store every time.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) (principal.Role, error) {
	role, err := s.store.FindRoleByID(ctx, roleID)
	if err != nil {
		return principal.Role{}, err
	}
	if err := s.store.UpdateUserRole(ctx, userID, roleID); err != nil {
		return principal.Role{}, err
	}
	return role, nil
}

// HasPermission reports whether the user currently holds permission.
func (s *Service) HasPermission(ctx context.Context, userID int64, permission string) (bool, error) {
	snap, err := s.builder.Build(ctx, userID)
	if err != nil {
		if errors.Is(err, rbac.ErrUnknownPrincipal) {
			return false, principal.ErrNotFound
		}
		return false, err
	}
	return snap.Has(permission), nil
}
