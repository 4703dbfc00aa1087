package rbac

import (
	"github.com/odyssey-erp/rbacadmin/internal/principal"
)

// ReadOnlyRole is the role name reported for users without a role.
const ReadOnlyRole = "READ_ONLY"

// PageRef is the page descriptor embedded in a snapshot.
type PageRef struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

// Snapshot is the derived role, permission and page view of a user.
// It is never mutated after construction; rebuild it instead.
type Snapshot struct {
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
	Pages       []PageRef `json:"pages"`
}

// Has reports whether the snapshot carries the permission, compared exactly.
func (s Snapshot) Has(permission string) bool {
	for _, p := range s.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// HasPage reports whether the snapshot grants the page slug.
func (s Snapshot) HasPage(slug string) bool {
	for _, p := range s.Pages {
		if p.Slug == slug {
			return true
		}
	}
	return false
}

// Principal is a user together with a freshly built snapshot.
type Principal struct {
	User     principal.User
	Snapshot Snapshot
}

// SnapshotFromAuthorization derives a snapshot. A missing role yields the
// read-only snapshot with empty sets.
func SnapshotFromAuthorization(auth principal.Authorization) Snapshot {
	if auth.Grants == nil {
		return Snapshot{Role: ReadOnlyRole, Permissions: []string{}, Pages: []PageRef{}}
	}
	snap := Snapshot{
		Role:        auth.Grants.Role.Name,
		Permissions: make([]string, 0, len(auth.Grants.Permissions)),
		Pages:       make([]PageRef, 0, len(auth.Grants.Pages)),
	}
	for _, p := range auth.Grants.Permissions {
		snap.Permissions = append(snap.Permissions, p.Name)
	}
	for _, p := range auth.Grants.Pages {
		snap.Pages = append(snap.Pages, PageRef{ID: p.ID, Title: p.Title, Slug: p.Slug})
	}
	return snap
}
