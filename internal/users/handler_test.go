package users

import (
	"context"
	"encoding/json"
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

type env struct {
	store  *principaltest.Store
	actor  principal.User
	events []audit.Event
	router http.Handler
}

func newEnv(t *testing.T, perms ...string) *env {
	t.Helper()
	store := principaltest.New()
	role := store.SeedRole("ADMIN", false, perms...)
	actor := store.SeedUser(principal.User{Email: "admin@example.com", Name: "Admin", RoleID: &role.ID})
	e := &env{store: store, actor: actor}

	subject := func(context.Context) (int64, bool) { return actor.ID, true }
	guard := rbac.NewGuard(rbac.NewBuilder(store), subject, nil, nil)
	h := NewHandler(nil, NewService(store), guard, audit.EmitterFunc(func(ev audit.Event) {
		e.events = append(e.events, ev)
	}))
	r := chi.NewRouter()
	r.Route("/users", h.MountRoutes)
	e.router = r
	return e
}

func (e *env) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func TestListUsersRequiresPermission(t *testing.T) {
	e := newEnv(t)
	rr := e.do(http.MethodGet, "/users", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), rbac.MessageForbidden)
}

func TestListUsersPaginates(t *testing.T) {
	e := newEnv(t, shared.PermUsersRead)
	for i := 0; i < 3; i++ {
		e.store.SeedUser(principal.User{Email: fmt.Sprintf("u%d@example.com", i), Name: "User"})
	}

	rr := e.do(http.MethodGet, "/users?page=1&limit=2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data listResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, body.Data.Users, 2)
	assert.Equal(t, 4, body.Data.Pagination.Total)
	assert.Equal(t, 2, body.Data.Pagination.TotalPages)
	assert.NotContains(t, rr.Body.String(), "password")
}

func TestDisableDeniedHasNoSideEffect(t *testing.T) {
	e := newEnv(t, shared.PermUsersRead)
	target := e.store.SeedUser(principal.User{Email: "t@example.com"})

	rr := e.do(http.MethodPut, fmt.Sprintf("/users/%d/disable", target.ID), `{"value":true}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	got, err := e.store.FindUserByID(context.Background(), target.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDisabled)
	assert.Empty(t, e.events)
}

func TestDisableUser(t *testing.T) {
	e := newEnv(t, shared.PermUsersDisable)
	target := e.store.SeedUser(principal.User{Email: "t@example.com"})

	rr := e.do(http.MethodPut, fmt.Sprintf("/users/%d/disable", target.ID), `{"value":true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got, err := e.store.FindUserByID(context.Background(), target.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDisabled)
	require.Len(t, e.events, 1)
	assert.Equal(t, audit.ActionAdmin, e.events[0].Action)
	assert.Equal(t, e.actor.ID, *e.events[0].UserID)
}

func TestCannotDisableSelf(t *testing.T) {
	e := newEnv(t, shared.PermUsersDisable)
	rr := e.do(http.MethodPut, fmt.Sprintf("/users/%d/disable", e.actor.ID), `{"value":true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSoftDeleteAndRestore(t *testing.T) {
	e := newEnv(t, shared.PermUsersSoftDelete)
	target := e.store.SeedUser(principal.User{Email: "t@example.com"})

	rr := e.do(http.MethodPut, fmt.Sprintf("/users/%d/soft-delete", target.ID), `{"value":true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	got, _ := e.store.FindUserByID(context.Background(), target.ID)
	assert.True(t, got.IsDeleted)
	assert.NotNil(t, got.DeletedAt)

	rr = e.do(http.MethodPut, fmt.Sprintf("/users/%d/soft-delete", target.ID), `{"value":false}`)
	require.Equal(t, http.StatusOK, rr.Code)
	got, _ = e.store.FindUserByID(context.Background(), target.ID)
	assert.False(t, got.IsDeleted)
}

func TestHardDeleteMissingUser(t *testing.T) {
	e := newEnv(t, shared.PermUsersHardDelete)
	rr := e.do(http.MethodDelete, "/users/999", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAssignRoleTakesEffectImmediately(t *testing.T) {
	e := newEnv(t, shared.PermUsersUpdateRole)
	editor := e.store.SeedRole("EDITOR", false, "update:pages")
	target := e.store.SeedUser(principal.User{Email: "t@example.com"})
	svc := NewService(e.store)

	has, err := svc.HasPermission(context.Background(), target.ID, "update:pages")
	require.NoError(t, err)
	assert.False(t, has)

	rr := e.do(http.MethodPut, fmt.Sprintf("/users/%d/role", target.ID), fmt.Sprintf(`{"roleId":%d}`, editor.ID))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	has, err = svc.HasPermission(context.Background(), target.ID, "update:pages")
	require.NoError(t, err)
	assert.True(t, has)
	require.Len(t, e.events, 1)
	assert.Equal(t, audit.ActionPermissionChange, e.events[0].Action)
}

func TestAssignUnknownRole(t *testing.T) {
	e := newEnv(t, shared.PermUsersUpdateRole)
	target := e.store.SeedUser(principal.User{Email: "t@example.com"})
	rr := e.do(http.MethodPut, fmt.Sprintf("/users/%d/role", target.ID), `{"roleId":4242}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateUserValidation(t *testing.T) {
	e := newEnv(t, shared.PermUsersCreate)

	rr := e.do(http.MethodPost, "/users", `{"name":"N","email":"bad","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(http.MethodPost, "/users", `{"name":"N","email":"New@Example.com","password":"password123"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	got, err := e.store.FindUserByEmail(context.Background(), "new@example.com")
	require.NoError(t, err)
	assert.NotNil(t, got.EmailVerified)

	rr = e.do(http.MethodPost, "/users", `{"name":"N","email":"new@example.com","password":"password123"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestCheckPermission(t *testing.T) {
	e := newEnv(t, shared.PermUsersRead)

	rr := e.do(http.MethodGet, "/users/check-permission?permission=read:users", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"hasPermission":true`)

	rr = e.do(http.MethodGet, "/users/check-permission?permission=delete:roles", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"hasPermission":false`)
}
