// Package principaltest provides an in-memory principal store for tests.
package principaltest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/rbacadmin/internal/principal"
)

// Store is a mutex-guarded principal.Store. Set Err to make every call fail
// with principal.ErrStoreUnavailable semantics.
type Store struct {
	mu sync.Mutex

	Err error

	nextID      int64
	users       map[int64]principal.User
	roles       map[int64]principal.Role
	permissions map[int64]principal.Permission
	pages       map[int64]principal.Page
	rolePerms   map[int64]map[int64]struct{}
	rolePages   map[int64]map[int64]struct{}
}

var _ principal.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:       map[int64]principal.User{},
		roles:       map[int64]principal.Role{},
		permissions: map[int64]principal.Permission{},
		pages:       map[int64]principal.Page{},
		rolePerms:   map[int64]map[int64]struct{}{},
		rolePages:   map[int64]map[int64]struct{}{},
	}
}

// SetErr swaps the injected failure.
func (s *Store) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

func (s *Store) fail() error {
	if s.Err != nil {
		return s.Err
	}
	return nil
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// SeedRole creates a role granting the named permissions, creating missing permissions on the fly.
func (s *Store) SeedRole(name string, isDefault bool, permissions ...string) principal.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	role := principal.Role{ID: s.id(), Name: name, IsDefault: isDefault, CreatedAt: now, UpdatedAt: now}
	if isDefault {
		for id, r := range s.roles {
			r.IsDefault = false
			s.roles[id] = r
		}
	}
	s.roles[role.ID] = role
	set := map[int64]struct{}{}
	for _, name := range permissions {
		set[s.permissionIDLocked(name)] = struct{}{}
	}
	s.rolePerms[role.ID] = set
	s.rolePages[role.ID] = map[int64]struct{}{}
	return role
}

// PermissionID returns the id of the named permission, creating it if needed.
func (s *Store) PermissionID(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permissionIDLocked(name)
}

func (s *Store) permissionIDLocked(name string) int64 {
	for id, p := range s.permissions {
		if p.Name == name {
			return id
		}
	}
	now := time.Now().UTC()
	p := principal.Permission{ID: s.id(), Name: name, CreatedAt: now, UpdatedAt: now}
	s.permissions[p.ID] = p
	return p.ID
}

// SeedPage creates a page and grants it to the given roles.
func (s *Store) SeedPage(title, slug string, roleIDs ...int64) principal.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	page := principal.Page{ID: s.id(), Title: title, Slug: slug, CreatedAt: now, UpdatedAt: now}
	s.pages[page.ID] = page
	for _, roleID := range roleIDs {
		if s.rolePages[roleID] == nil {
			s.rolePages[roleID] = map[int64]struct{}{}
		}
		s.rolePages[roleID][page.ID] = struct{}{}
	}
	return page
}

// SeedUser inserts a user as-is, assigning an id when zero.
func (s *Store) SeedUser(u principal.User) principal.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	u.Email = principal.NormalizeEmail(u.Email)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
		u.UpdatedAt = u.CreatedAt
	}
	s.users[u.ID] = u
	return u
}

// RevokePermission removes a named permission from a role.
func (s *Store) RevokePermission(roleID int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.permissions {
		if p.Name == name {
			delete(s.rolePerms[roleID], id)
		}
	}
}

// DefaultCount reports how many roles are flagged as default.
func (s *Store) DefaultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.roles {
		if r.IsDefault {
			n++
		}
	}
	return n
}

func (s *Store) FindUserByID(_ context.Context, id int64) (principal.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.User{}, err
	}
	u, ok := s.users[id]
	if !ok {
		return principal.User{}, principal.ErrNotFound
	}
	return u, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (principal.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.User{}, err
	}
	email = principal.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return principal.User{}, principal.ErrNotFound
}

func (s *Store) FindUserByUsername(_ context.Context, username string) (principal.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.User{}, err
	}
	for _, u := range s.users {
		if u.Username != nil && *u.Username == username {
			return u, nil
		}
	}
	return principal.User{}, principal.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context, filter principal.ListFilter) ([]principal.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, 0, err
	}
	filter = filter.Normalize()
	var out []principal.User
	for _, u := range s.users {
		if matches(filter.Search, u.Email, u.Name) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, filter), len(out), nil
}

func (s *Store) CreateUser(_ context.Context, input principal.NewUser) (principal.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.User{}, err
	}
	email := principal.NormalizeEmail(input.Email)
	for _, u := range s.users {
		if u.Email == email {
			return principal.User{}, principal.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	u := principal.User{
		ID:            s.id(),
		Email:         email,
		Name:          input.Name,
		Image:         input.Image,
		PasswordHash:  input.PasswordHash,
		EmailVerified: input.EmailVerified,
		RoleID:        input.RoleID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	if _, ok := s.users[id]; !ok {
		return principal.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *Store) UpdateUserRole(_ context.Context, userID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	u, ok := s.users[userID]
	if !ok {
		return principal.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return principal.ErrNotFound
	}
	u.RoleID = &roleID
	s.users[userID] = u
	return nil
}

func (s *Store) SetUserDisabled(_ context.Context, id int64, disabled bool) (principal.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.User{}, err
	}
	u, ok := s.users[id]
	if !ok {
		return principal.User{}, principal.ErrNotFound
	}
	u.IsDisabled = disabled
	s.users[id] = u
	return u, nil
}

func (s *Store) SetUserDeleted(_ context.Context, id int64, deleted bool, at time.Time) (principal.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.User{}, err
	}
	u, ok := s.users[id]
	if !ok {
		return principal.User{}, principal.ErrNotFound
	}
	u.IsDeleted = deleted
	if deleted {
		u.DeletedAt = &at
	} else {
		u.DeletedAt = nil
	}
	s.users[id] = u
	return u, nil
}

func (s *Store) MarkEmailVerified(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	u, ok := s.users[id]
	if !ok {
		return principal.ErrNotFound
	}
	if u.EmailVerified == nil {
		u.EmailVerified = &at
	}
	s.users[id] = u
	return nil
}

func (s *Store) UpdateProfile(_ context.Context, id int64, update principal.ProfileUpdate) (principal.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.User{}, err
	}
	u, ok := s.users[id]
	if !ok {
		return principal.User{}, principal.ErrNotFound
	}
	if update.Username != nil {
		for otherID, other := range s.users {
			if otherID != id && other.Username != nil && *other.Username == *update.Username {
				return principal.User{}, principal.ErrDuplicate
			}
		}
		username := *update.Username
		u.Username = &username
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Image != nil {
		u.Image = *update.Image
	}
	if update.PasswordHash != nil {
		u.PasswordHash = *update.PasswordHash
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return u, nil
}

func (s *Store) FindRoleByID(_ context.Context, id int64) (principal.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.Role{}, err
	}
	r, ok := s.roles[id]
	if !ok {
		return principal.Role{}, principal.ErrNotFound
	}
	return r, nil
}

func (s *Store) FindRoleGrants(_ context.Context, id int64) (principal.RoleGrants, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.RoleGrants{}, err
	}
	return s.grantsLocked(id)
}

func (s *Store) grantsLocked(id int64) (principal.RoleGrants, error) {
	role, ok := s.roles[id]
	if !ok {
		return principal.RoleGrants{}, principal.ErrNotFound
	}
	grants := principal.RoleGrants{Role: role}
	for pid := range s.rolePerms[id] {
		grants.Permissions = append(grants.Permissions, s.permissions[pid])
	}
	sort.Slice(grants.Permissions, func(i, j int) bool { return grants.Permissions[i].Name < grants.Permissions[j].Name })
	for pid := range s.rolePages[id] {
		grants.Pages = append(grants.Pages, s.pages[pid])
	}
	sort.Slice(grants.Pages, func(i, j int) bool { return grants.Pages[i].ID < grants.Pages[j].ID })
	return grants, nil
}

func (s *Store) FindDefaultRole(_ context.Context) (principal.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.Role{}, err
	}
	for _, r := range s.roles {
		if r.IsDefault {
			return r, nil
		}
	}
	return principal.Role{}, principal.ErrNotFound
}

func (s *Store) ListRoles(_ context.Context, filter principal.ListFilter) ([]principal.Role, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, 0, err
	}
	filter = filter.Normalize()
	var out []principal.Role
	for _, r := range s.roles {
		if matches(filter.Search, r.Name, r.Description) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, filter), len(out), nil
}

func (s *Store) CreateRole(_ context.Context, name, description string, isDefault bool) (principal.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.Role{}, err
	}
	for _, r := range s.roles {
		if r.Name == name {
			return principal.Role{}, principal.ErrDuplicate
		}
		if isDefault && r.IsDefault {
			return principal.Role{}, principal.ErrDefaultRoleExists
		}
	}
	now := time.Now().UTC()
	role := principal.Role{ID: s.id(), Name: name, Description: description, IsDefault: isDefault, CreatedAt: now, UpdatedAt: now}
	s.roles[role.ID] = role
	s.rolePerms[role.ID] = map[int64]struct{}{}
	s.rolePages[role.ID] = map[int64]struct{}{}
	return role, nil
}

func (s *Store) UpdateRole(_ context.Context, id int64, name, description string) (principal.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.Role{}, err
	}
	role, ok := s.roles[id]
	if !ok {
		return principal.Role{}, principal.ErrNotFound
	}
	for otherID, r := range s.roles {
		if otherID != id && r.Name == name {
			return principal.Role{}, principal.ErrDuplicate
		}
	}
	role.Name, role.Description, role.UpdatedAt = name, description, time.Now().UTC()
	s.roles[id] = role
	return role, nil
}

func (s *Store) DeleteRole(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	if _, ok := s.roles[id]; !ok {
		return principal.ErrNotFound
	}
	delete(s.roles, id)
	delete(s.rolePerms, id)
	delete(s.rolePages, id)
	for uid, u := range s.users {
		if u.RoleID != nil && *u.RoleID == id {
			u.RoleID = nil
			s.users[uid] = u
		}
	}
	return nil
}

// SetDefaultRole swaps the default flag under the store lock so no reader sees an intermediate state.
func (s *Store) SetDefaultRole(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	if _, ok := s.roles[id]; !ok {
		return principal.ErrNotFound
	}
	for rid, r := range s.roles {
		r.IsDefault = rid == id
		s.roles[rid] = r
	}
	return nil
}

func (s *Store) SetRolePermissions(_ context.Context, roleID int64, permissionIDs []int64) (principal.RoleGrants, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.RoleGrants{}, err
	}
	if _, ok := s.roles[roleID]; !ok {
		return principal.RoleGrants{}, principal.ErrNotFound
	}
	set := map[int64]struct{}{}
	for _, id := range permissionIDs {
		if _, ok := s.permissions[id]; !ok {
			return principal.RoleGrants{}, principal.ErrNotFound
		}
		set[id] = struct{}{}
	}
	s.rolePerms[roleID] = set
	return s.grantsLocked(roleID)
}

func (s *Store) SetRolePages(_ context.Context, roleID int64, pageIDs []int64) (principal.RoleGrants, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.RoleGrants{}, err
	}
	if _, ok := s.roles[roleID]; !ok {
		return principal.RoleGrants{}, principal.ErrNotFound
	}
	set := map[int64]struct{}{}
	for _, id := range pageIDs {
		if _, ok := s.pages[id]; !ok {
			return principal.RoleGrants{}, principal.ErrNotFound
		}
		set[id] = struct{}{}
	}
	s.rolePages[roleID] = set
	return s.grantsLocked(roleID)
}

func (s *Store) ListPermissions(_ context.Context, filter principal.ListFilter) ([]principal.Permission, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, 0, err
	}
	filter = filter.Normalize()
	var out []principal.Permission
	for _, p := range s.permissions {
		if matches(filter.Search, p.Name, p.Description) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, filter), len(out), nil
}

func (s *Store) CreatePermission(_ context.Context, name, description string) (principal.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.Permission{}, err
	}
	for _, p := range s.permissions {
		if p.Name == name {
			return principal.Permission{}, principal.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	p := principal.Permission{ID: s.id(), Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	s.permissions[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePermission(_ context.Context, id int64, name, description string) (principal.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.Permission{}, err
	}
	p, ok := s.permissions[id]
	if !ok {
		return principal.Permission{}, principal.ErrNotFound
	}
	for otherID, other := range s.permissions {
		if otherID != id && other.Name == name {
			return principal.Permission{}, principal.ErrDuplicate
		}
	}
	p.Name, p.Description, p.UpdatedAt = name, description, time.Now().UTC()
	s.permissions[id] = p
	return p, nil
}

func (s *Store) DeletePermission(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	if _, ok := s.permissions[id]; !ok {
		return principal.ErrNotFound
	}
	delete(s.permissions, id)
	for _, set := range s.rolePerms {
		delete(set, id)
	}
	return nil
}

func (s *Store) ListPages(_ context.Context, filter principal.ListFilter) ([]principal.Page, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, 0, err
	}
	filter = filter.Normalize()
	var out []principal.Page
	for _, p := range s.pages {
		if matches(filter.Search, p.Title, p.Slug, p.StaticText) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, filter), len(out), nil
}

func (s *Store) FindPageByID(_ context.Context, id int64) (principal.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.Page{}, err
	}
	p, ok := s.pages[id]
	if !ok {
		return principal.Page{}, principal.ErrNotFound
	}
	return p, nil
}

func (s *Store) FindPageBySlug(_ context.Context, slug string) (principal.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.Page{}, err
	}
	for _, p := range s.pages {
		if p.Slug == slug {
			return p, nil
		}
	}
	return principal.Page{}, principal.ErrNotFound
}

func (s *Store) CreatePage(_ context.Context, page principal.Page) (principal.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.Page{}, err
	}
	for _, p := range s.pages {
		if p.Slug == page.Slug {
			return principal.Page{}, principal.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	page.ID, page.CreatedAt, page.UpdatedAt = s.id(), now, now
	s.pages[page.ID] = page
	return page, nil
}

func (s *Store) UpdatePage(_ context.Context, page principal.Page) (principal.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.Page{}, err
	}
	existing, ok := s.pages[page.ID]
	if !ok {
		return principal.Page{}, principal.ErrNotFound
	}
	for id, p := range s.pages {
		if id != page.ID && p.Slug == page.Slug {
			return principal.Page{}, principal.ErrDuplicate
		}
	}
	page.CreatedAt, page.UpdatedAt = existing.CreatedAt, time.Now().UTC()
	s.pages[page.ID] = page
	return page, nil
}

func (s *Store) DeletePage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	if _, ok := s.pages[id]; !ok {
		return principal.ErrNotFound
	}
	delete(s.pages, id)
	for _, set := range s.rolePages {
		delete(set, id)
	}
	return nil
}

func (s *Store) SlugTaken(_ context.Context, slug string, ignoreID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return false, err
	}
	for id, p := range s.pages {
		if id != ignoreID && p.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) LoadAuthorization(_ context.Context, userID int64) (principal.Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return principal.Authorization{}, err
	}
	u, ok := s.users[userID]
	if !ok {
		return principal.Authorization{}, principal.ErrNotFound
	}
	out := principal.Authorization{User: u}
	if u.RoleID == nil {
		return out, nil
	}
	grants, err := s.grantsLocked(*u.RoleID)
	if err != nil {
		return out, nil
	}
	out.Grants = &grants
	return out, nil
}

func matches(search string, fields ...string) bool {
	if search == "" {
		return true
	}
	search = strings.ToLower(search)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, filter principal.ListFilter) []T {
	start := filter.Offset()
	if start >= len(items) {
		return nil
	}
	end := start + filter.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
