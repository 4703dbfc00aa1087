package principal

import (
	"context"
	"time"
)

// UserStore covers user lookups and mutations.
type UserStore interface {
	FindUserByID(ctx context.Context, id int64) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	FindUserByUsername(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error)
	CreateUser(ctx context.Context, input NewUser) (User, error)
	DeleteUser(ctx context.Context, id int64) error
	UpdateUserRole(ctx context.Context, userID, roleID int64) error
	SetUserDisabled(ctx context.Context, id int64, disabled bool) (User, error)
	SetUserDeleted(ctx context.Context, id int64, deleted bool, at time.Time) (User, error)
	MarkEmailVerified(ctx context.Context, id int64, at time.Time) error
	UpdateProfile(ctx context.Context, id int64, update ProfileUpdate) (User, error)
}

// RoleStore covers roles and their grant sets.
type RoleStore interface {
	FindRoleByID(ctx context.Context, id int64) (Role, error)
	FindRoleGrants(ctx context.Context, id int64) (RoleGrants, error)
	FindDefaultRole(ctx context.Context) (Role, error)
	ListRoles(ctx context.Context, filter ListFilter) ([]Role, int, error)
	CreateRole(ctx context.Context, name, description string, isDefault bool) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	// SetDefaultRole clears any previous default and marks id as default in one atomic unit.
	SetDefaultRole(ctx context.Context, id int64) error
	SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (RoleGrants, error)
	SetRolePages(ctx context.Context, roleID int64, pageIDs []int64) (RoleGrants, error)
}

// CatalogStore covers permissions and pages.
type CatalogStore interface {
	ListPermissions(ctx context.Context, filter ListFilter) ([]Permission, int, error)
	CreatePermission(ctx context.Context, name, description string) (Permission, error)
	UpdatePermission(ctx context.Context, id int64, name, description string) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error
	ListPages(ctx context.Context, filter ListFilter) ([]Page, int, error)
	FindPageByID(ctx context.Context, id int64) (Page, error)
	FindPageBySlug(ctx context.Context, slug string) (Page, error)
	CreatePage(ctx context.Context, page Page) (Page, error)
	UpdatePage(ctx context.Context, page Page) (Page, error)
	DeletePage(ctx context.Context, id int64) error
	UniqueSlugChecker
}

// AuthorizationLoader reads a user with role, permissions and pages as one logical read.
type AuthorizationLoader interface {
	LoadAuthorization(ctx context.Context, userID int64) (Authorization, error)
}

// Store is the full principal store.
type Store interface {
	UserStore
	RoleStore
	CatalogStore
	AuthorizationLoader
}
