package roles

import (
	"time"

	"github.com/odyssey-erp/rbacadmin/internal/principal"
)

// Role is the admin view of a role.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsDefault   bool      `json:"isDefault"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// GrantRef names a permission or page attached to a role.
type GrantRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// Detail is a role with its permission and page sets.
type Detail struct {
	Role        Role       `json:"role"`
	Permissions []GrantRef `json:"permissions"`
	Pages       []GrantRef `json:"pages"`
}

func fromPrincipal(r principal.Role) Role {
	return Role{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		IsDefault:   r.IsDefault,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func detailFrom(g principal.RoleGrants) Detail {
	d := Detail{
		Role:        fromPrincipal(g.Role),
		Permissions: make([]GrantRef, 0, len(g.Permissions)),
		Pages:       make([]GrantRef, 0, len(g.Pages)),
	}
	for _, p := range g.Permissions {
		d.Permissions = append(d.Permissions, GrantRef{ID: p.ID, Name: p.Name})
	}
	for _, p := range g.Pages {
		d.Pages = append(d.Pages, GrantRef{ID: p.ID, Name: p.Title, Slug: p.Slug})
	}
	return d
}
