package roles

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/rbacadmin/internal/audit"
	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/principal/principaltest"
	"github.com/odyssey-erp/rbacadmin/internal/rbac"
	"github.com/odyssey-erp/rbacadmin/internal/shared"
)

type env struct {
	store   *principaltest.Store
	role    principal.Role
	actor   principal.User
	builder *rbac.Builder
	router  http.Handler
}

func newEnv(t *testing.T, perms ...string) *env {
	t.Helper()
	store := principaltest.New()
	role := store.SeedRole("ADMIN", false, perms...)
	actor := store.SeedUser(principal.User{Email: "admin@example.com", RoleID: &role.ID})
	builder := rbac.NewBuilder(store)
	subject := func(context.Context) (int64, bool) { return actor.ID, true }
	h := NewHandler(nil, NewService(store), rbac.NewGuard(builder, subject, nil, nil), audit.Discard)
	r := chi.NewRouter()
	r.Route("/roles", h.MountRoutes)
	return &env{store: store, role: role, actor: actor, builder: builder, router: r}
}

func (e *env) do(method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func TestRevokedDeletePermissionBlocksNextRequest(t *testing.T) {
	e := newEnv(t, shared.PermRolesDelete, shared.PermRolesUpdatePermissions)
	victim := e.store.SeedRole("TEMP", false)

	keep := e.store.PermissionID(shared.PermRolesUpdatePermissions)
	rr := e.do(http.MethodPut, fmt.Sprintf("/roles/%d/permissions", e.role.ID), fmt.Sprintf(`{"ids":[%d]}`, keep))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = e.do(http.MethodDelete, fmt.Sprintf("/roles/%d", victim.ID), "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	_, err := e.store.FindRoleByID(context.Background(), victim.ID)
	assert.NoError(t, err)
}

func TestCreateRoleNormalisesName(t *testing.T) {
	e := newEnv(t, shared.PermRolesAdd)

	rr := e.do(http.MethodPost, "/roles", `{"name":" editor ","description":"Edits pages"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var body struct {
		Data Role `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "EDITOR", body.Data.Name)

	rr = e.do(http.MethodPost, "/roles", `{"name":"EDITOR"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestCreateSecondDefaultRoleConflicts(t *testing.T) {
	e := newEnv(t, shared.PermRolesAdd)
	e.store.SeedRole("USER", true)

	rr := e.do(http.MethodPost, "/roles", `{"name":"GUEST","isDefault":true}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, 1, e.store.DefaultCount())
}

func TestSetDefaultMovesFlag(t *testing.T) {
	e := newEnv(t, shared.PermRolesUpdate)
	old := e.store.SeedRole("USER", true)
	next := e.store.SeedRole("MEMBER", false)

	rr := e.do(http.MethodPut, fmt.Sprintf("/roles/%d/default", next.ID), "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	def, err := e.store.FindDefaultRole(context.Background())
	require.NoError(t, err)
	assert.Equal(t, next.ID, def.ID)
	got, _ := e.store.FindRoleByID(context.Background(), old.ID)
	assert.False(t, got.IsDefault)
}

func TestConcurrentSetDefaultLeavesExactlyOne(t *testing.T) {
	store := principaltest.New()
	ids := make([]int64, 8)
	for i := range ids {
		ids[i] = store.SeedRole(fmt.Sprintf("R%d", i), i == 0).ID
	}
	svc := NewService(store)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := svc.SetDefault(context.Background(), id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()
	assert.Equal(t, 1, store.DefaultCount())
}

func TestSetPagesUnknownPage(t *testing.T) {
	e := newEnv(t, shared.PermRolesUpdatePages)
	rr := e.do(http.MethodPut, fmt.Sprintf("/roles/%d/pages", e.role.ID), `{"ids":[999]}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSetPagesReflectsInSnapshot(t *testing.T) {
	e := newEnv(t, shared.PermRolesUpdatePages)
	page := e.store.SeedPage("Reports", "reports")

	rr := e.do(http.MethodPut, fmt.Sprintf("/roles/%d/pages", e.role.ID), fmt.Sprintf(`{"ids":[%d,%d]}`, page.ID, page.ID))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	snap, err := e.builder.Build(context.Background(), e.actor.ID)
	require.NoError(t, err)
	assert.True(t, snap.HasPage("reports"))
}

func TestDeleteRoleFallsBackToReadOnly(t *testing.T) {
	e := newEnv(t, shared.PermRolesDelete)
	other := e.store.SeedRole("STAFF", false, "read:pages")
	member := e.store.SeedUser(principal.User{Email: "m@example.com", RoleID: &other.ID})

	rr := e.do(http.MethodDelete, fmt.Sprintf("/roles/%d", other.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)

	snap, err := e.builder.Build(context.Background(), member.ID)
	require.NoError(t, err)
	assert.Equal(t, rbac.ReadOnlyRole, snap.Role)
}

func TestGetRoleDetail(t *testing.T) {
	e := newEnv(t, shared.PermRolesReadDetails, shared.PermRolesRead)
	rr := e.do(http.MethodGet, fmt.Sprintf("/roles/%d", e.role.ID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data Detail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, body.Data.Permissions, 2)

	rr = e.do(http.MethodGet, "/roles/abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
