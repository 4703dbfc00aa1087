// Package permissions manages the catalogue of `action:resource` capability names.
package permissions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/shared"
)

// ErrInvalidName rejects names not shaped `action:resource`.
var ErrInvalidName = fmt.Errorf("permission name must look like action:resource: %w", shared.ErrValidation)

// Permission is the admin view of a permission.
type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func fromPrincipal(p principal.Permission) Permission {
	return Permission{ID: p.ID, Name: p.Name, Description: p.Description, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt}
}

// Store is the catalogue subset for permissions.
type Store interface {
	ListPermissions(ctx context.Context, filter principal.ListFilter) ([]principal.Permission, int, error)
	CreatePermission(ctx context.Context, name, description string) (principal.Permission, error)
	UpdatePermission(ctx context.Context, id int64, name, description string) (principal.Permission, error)
	DeletePermission(ctx context.Context, id int64) error
}

// Service handles permission business logic.
type Service struct {
	store Store
}

// NewService builds Service instance.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns one page of permissions.
func (s *Service) List(ctx context.Context, filter principal.ListFilter) ([]Permission, int, error) {
	rows, total, err := s.store.ListPermissions(ctx, filter.Normalize())
	if err != nil {
		return nil, 0, err
	}
	out := make([]Permission, 0, len(rows))
	for _, p := range rows {
		out = append(out, fromPrincipal(p))
	}
	return out, total, nil
}

// Create adds a permission. Names are case-sensitive and stored as given.
func (s *Service) Create(ctx context.Context, name, description string) (Permission, error) {
	name, err := validName(name)
	if err != nil {
		return Permission{}, err
	}
	p, err := s.store.CreatePermission(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Permission{}, err
	}
	return fromPrincipal(p), nil
}

// Update renames or re-describes a permission. Roles holding it see the new
// name on their next request.
func (s *Service) Update(ctx context.Context, id int64, name, description string) (Permission, error) {
	name, err := validName(name)
	if err != nil {
		return Permission{}, err
	}
	p, err := s.store.UpdatePermission(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		return Permission{}, err
	}
	return fromPrincipal(p), nil
}

// Delete removes a permission and its role grants.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.DeletePermission(ctx, id)
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	action, resource, ok := strings.Cut(name, ":")
	if !ok || action == "" || resource == "" || strings.ContainsAny(name, " \t") || strings.Contains(resource, ":") {
		return "", ErrInvalidName
	}
	return name, nil
}
