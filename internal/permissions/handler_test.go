package permissions

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
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

func setup(t *testing.T, perms ...string) (*principaltest.Store, principal.User, http.Handler) {
	t.Helper()
	store := principaltest.New()
	role := store.SeedRole("ADMIN", false, perms...)
	actor := store.SeedUser(principal.User{Email: "admin@example.com", RoleID: &role.ID})
	subject := func(context.Context) (int64, bool) { return actor.ID, true }
	h := NewHandler(nil, NewService(store), rbac.NewGuard(rbac.NewBuilder(store), subject, nil, nil), audit.Discard)
	r := chi.NewRouter()
	r.Route("/permissions", h.MountRoutes)
	return store, actor, r
}

func call(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func TestValidName(t *testing.T) {
	for _, name := range []string{"read:users", "soft-delete:users", "update:roles-pages"} {
		_, err := validName(name)
		assert.NoError(t, err, name)
	}
	for _, name := range []string{"", "users", ":users", "read:", "read users:x", "a:b:c"} {
		_, err := validName(name)
		assert.ErrorIs(t, err, shared.ErrValidation, name)
	}
}

func TestCreatePermission(t *testing.T) {
	_, _, router := setup(t, shared.PermPermissionsAdd)

	rr := call(router, http.MethodPost, "/permissions", `{"name":"export:reports"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = call(router, http.MethodPost, "/permissions", `{"name":"export:reports"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = call(router, http.MethodPost, "/permissions", `{"name":"export reports"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeletePermissionRevokesGrant(t *testing.T) {
	store, _, router := setup(t, shared.PermPermissionsDelete)
	staff := store.SeedRole("STAFF", false, "read:reports")
	member := store.SeedUser(principal.User{Email: "m@example.com", RoleID: &staff.ID})
	builder := rbac.NewBuilder(store)

	snap, err := builder.Build(context.Background(), member.ID)
	require.NoError(t, err)
	require.True(t, snap.Has("read:reports"))

	rr := call(router, http.MethodDelete, fmt.Sprintf("/permissions/%d", store.PermissionID("read:reports")), "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	snap, err = builder.Build(context.Background(), member.ID)
	require.NoError(t, err)
	assert.False(t, snap.Has("read:reports"))
}

func TestListPermissionsForbidden(t *testing.T) {
	_, _, router := setup(t)
	rr := call(router, http.MethodGet, "/permissions", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
