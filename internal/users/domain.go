package users

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/shared"
)

// ErrSelfAction rejects disabling, deleting or demoting the caller's own account.
var ErrSelfAction = fmt.Errorf("users: not allowed on your own account: %w", shared.ErrValidation)

// User is the admin view of an account. The password hash never leaves the server.
type User struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	Username      *string    `json:"username,omitempty"`
	Name          string     `json:"name"`
	Image         string     `json:"image,omitempty"`
	EmailVerified *time.Time `json:"emailVerified,omitempty"`
	IsDisabled    bool       `json:"isDisabled"`
	IsDeleted     bool       `json:"isDeleted"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty"`
	RoleID        *int64     `json:"roleId,omitempty"`
	HasPassword   bool       `json:"hasPassword"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// FromPrincipal converts a stored user to its admin view.
func FromPrincipal(u principal.User) User {
	return User{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		Name:          u.Name,
		Image:         u.Image,
		EmailVerified: u.EmailVerified,
		IsDisabled:    u.IsDisabled,
		IsDeleted:     u.IsDeleted,
		DeletedAt:     u.DeletedAt,
		RoleID:        u.RoleID,
		HasPassword:   u.HasPassword(),
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// CreateInput is an admin-created account. Admin-created accounts start verified.
type CreateInput struct {
	Name     string
	Email    string
	Password string
	RoleID   *int64
}

// Detail is a user with the role snapshot it currently resolves to.
type Detail struct {
	User        User     `json:"user"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}
