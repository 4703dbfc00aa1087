package principal

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/rbacadmin/internal/shared"
)

var (
	// ErrNotFound indicates the requested principal record does not exist.
	ErrNotFound = fmt.Errorf("principal: %w", shared.ErrNotFound)
	// ErrDuplicate indicates a unique attribute (email, username, name, slug) is taken.
	ErrDuplicate = fmt.Errorf("principal: %w", shared.ErrDuplicate)
	// ErrDefaultRoleExists is returned when creating a second default role.
	ErrDefaultRoleExists = fmt.Errorf("principal: another default role already exists: %w", shared.ErrDuplicate)
	// ErrStoreUnavailable wraps failures talking to the backing store.
	ErrStoreUnavailable = fmt.Errorf("principal: store: %w", shared.ErrUnavailable)
)

// User is an identity record.
type User struct {
	ID            int64
	Email         string
	Username      *string
	PasswordHash  string
	Name          string
	Image         string
	EmailVerified *time.Time
	IsDisabled    bool
	IsDeleted     bool
	DeletedAt     *time.Time
	RoleID        *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasPassword reports whether the account can authenticate with credentials.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Active reports whether the account may hold a session.
func (u User) Active() bool {
	return !u.IsDisabled && !u.IsDeleted
}

// Role bundles permissions and pages.
type Role struct {
	ID          int64
	Name        string
	Description string
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is an atomic capability named `action:resource`.
type Permission struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Page is a slugged UI route descriptor.
type Page struct {
	ID         int64
	Title      string
	Slug       string
	StaticText string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RoleGrants is a role together with its permission and page sets.
type RoleGrants struct {
	Role        Role
	Permissions []Permission
	Pages       []Page
}

// Authorization is the result of a single logical read of user -> role -> grants.
// Grants is nil when the user has no role.
type Authorization struct {
	User   User
	Grants *RoleGrants
}

// NewUser holds the attributes for user creation.
type NewUser struct {
	Email         string
	Name          string
	PasswordHash  string
	Image         string
	EmailVerified *time.Time
	RoleID        *int64
}

// ProfileUpdate carries optional profile changes. Nil fields are left untouched.
type ProfileUpdate struct {
	Name         *string
	Username     *string
	Image        *string
	PasswordHash *string
}

// ListFilter drives paginated listings.
type ListFilter struct {
	Search string
	Page   int
	Limit  int
}

// Normalize clamps paging values to sane defaults.
func (f ListFilter) Normalize() ListFilter {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Offset returns the row offset for the current page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	// Casers carry state and must not be shared across goroutines.
	return cases.Lower(language.Und).String(strings.TrimSpace(email))
}
