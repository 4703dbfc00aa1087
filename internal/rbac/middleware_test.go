package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/rbacadmin/internal/platform/httpx"
	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/principal/principaltest"
)

func fixedSubject(id int64) SubjectFunc {
	return func(context.Context) (int64, bool) { return id, true }
}

func noSubject(context.Context) (int64, bool) { return 0, false }

func newGuard(store *principaltest.Store, subject SubjectFunc) *Guard {
	return NewGuard(NewBuilder(store), subject, nil, nil)
}

func TestGuardWithoutSessionIsUnauthorized(t *testing.T) {
	guard := newGuard(principaltest.New(), noSubject)

	d := guard.RequirePermission(httptest.NewRequest(http.MethodGet, "/", nil), "read:users")
	assert.False(t, d.Allowed)
	assert.Equal(t, http.StatusUnauthorized, d.Status)
	assert.Equal(t, MessageUnauthorized, d.Message)
}

func TestGuardMatchesExactly(t *testing.T) {
	store := principaltest.New()
	role := store.SeedRole("MIXED", false, "Read:Users")
	user := store.SeedUser(principal.User{Email: "u@example.com", RoleID: &role.ID})
	guard := newGuard(store, fixedSubject(user.ID))
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	d := guard.RequirePermission(req, "read:users")
	assert.False(t, d.Allowed)
	assert.Equal(t, http.StatusForbidden, d.Status)
	assert.Equal(t, MessageForbidden, d.Message)

	assert.True(t, guard.RequirePermission(req, "Read:Users").Allowed)
}

func TestGuardFailsClosedOnStoreError(t *testing.T) {
	store := principaltest.New()
	_, user := seedAdmin(t, store, "read:users")
	store.SetErr(principal.ErrStoreUnavailable)
	guard := newGuard(store, fixedSubject(user.ID))

	d := guard.RequirePermission(httptest.NewRequest(http.MethodGet, "/", nil), "read:users")
	assert.False(t, d.Allowed)
	assert.Equal(t, http.StatusServiceUnavailable, d.Status)
}

func TestGuardRejectsDisabledUser(t *testing.T) {
	store := principaltest.New()
	_, user := seedAdmin(t, store, "read:users")
	_, err := store.SetUserDisabled(context.Background(), user.ID, true)
	require.NoError(t, err)

	d := newGuard(store, fixedSubject(user.ID)).RequirePermission(httptest.NewRequest(http.MethodGet, "/", nil), "read:users")
	assert.Equal(t, http.StatusUnauthorized, d.Status)
}

func TestGuardSeesRevocationWithinSession(t *testing.T) {
	store := principaltest.New()
	role, user := seedAdmin(t, store, "delete:roles")
	guard := newGuard(store, fixedSubject(user.ID))

	var calls int
	handler := guard.Require("delete:roles")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/protected/roles/1", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	store.RevokePermission(role.ID, "delete:roles")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/protected/roles/1", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, 1, calls)

	var body httpx.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, MessageForbidden, body.Message)
}
