package roles

import (
	"context"
	"strings"

	"github.com/odyssey-erp/rbacadmin/internal/principal"
)

// Service handles role business logic.
type Service struct {
	store principal.RoleStore
}

// NewService builds Service instance.
func NewService(store principal.RoleStore) *Service {
	return &Service{store: store}
}

// List returns one page of roles.
func (s *Service) List(ctx context.Context, filter principal.ListFilter) ([]Role, int, error) {
	rows, total, err := s.store.ListRoles(ctx, filter.Normalize())
	if err != nil {
		return nil, 0, err
	}
	out := make([]Role, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromPrincipal(r))
	}
	return out, total, nil
}

// Get returns a role with its grants.
func (s *Service) Get(ctx context.Context, id int64) (Detail, error) {
	g, err := s.store.FindRoleGrants(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return detailFrom(g), nil
}

// Create adds a role. Creating a second default role fails; use SetDefault
// to move the flag.
func (s *Service) Create(ctx context.Context, name, description string, isDefault bool) (Role, error) {
	r, err := s.store.CreateRole(ctx, normalizeName(name), strings.TrimSpace(description), isDefault)
	if err != nil {
		return Role{}, err
	}
	return fromPrincipal(r), nil
}

// Update renames or re-describes a role.
func (s *Service) Update(ctx context.Context, id int64, name, description string) (Role, error) {
	r, err := s.store.UpdateRole(ctx, id, normalizeName(name), strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	return fromPrincipal(r), nil
}

// Delete removes a role. Users holding it fall back to READ_ONLY.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteRole(ctx, id)
}

// SetDefault makes id the only default role.
func (s *Service) SetDefault(ctx context.Context, id int64) (Role, error) {
	if err := s.store.SetDefaultRole(ctx, id); err != nil {
		return Role{}, err
	}
	r, err := s.store.FindRoleByID(ctx, id)
	if err != nil {
		return Role{}, err
	}
	return fromPrincipal(r), nil
}

// SetPermissions replaces the role's permission set.
func (s *Service) SetPermissions(ctx context.Context, id int64, permissionIDs []int64) (Detail, error) {
	g, err := s.store.SetRolePermissions(ctx, id, permissionIDs)
	if err != nil {
		return Detail{}, err
	}
	return detailFrom(g), nil
}

// SetPages replaces the role's page set.
func (s *Service) SetPages(ctx context.Context, id int64, pageIDs []int64) (Detail, error) {
	g, err := s.store.SetRolePages(ctx, id, pageIDs)
	if err != nil {
		return Detail{}, err
	}
	return detailFrom(g), nil
}

// Role names are stored upper case, matching READ_ONLY and seeded roles.
func normalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
