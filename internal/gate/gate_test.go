package gate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/rbacadmin/internal/rbac"
	"github.com/odyssey-erp/rbacadmin/internal/session"
)

func claims() *session.Claims {
	return &session.Claims{
		Role:        "EDITOR",
		Permissions: []string{"read:pages"},
		Pages:       []rbac.PageRef{{ID: 1, Title: "Reports", Slug: "reports"}},
	}
}

func TestCheck(t *testing.T) {
	c := claims()
	assert.True(t, Check(c, Requirement{Permission: "read:pages"}))
	assert.True(t, Check(c, Requirement{PageSlug: "reports"}))
	assert.True(t, Check(c, Requirement{Permission: "read:pages", PageSlug: "reports"}))
	assert.False(t, Check(c, Requirement{Permission: "Read:Pages"}))
	assert.False(t, Check(c, Requirement{Permission: "read:pages", PageSlug: "billing"}))
	assert.False(t, Check(nil, Requirement{}))
	assert.True(t, Check(c, Requirement{}))
}

func TestProtectRedirectsWithNotice(t *testing.T) {
	h := Protect(Static(Requirement{PageSlug: "billing"}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard/pages/billing", nil)
	req = req.WithContext(session.WithRequestContext(context.Background(), session.RequestContext{Claims: claims()}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusSeeOther, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, UnauthorizedPath, loc.Path)
	assert.Contains(t, loc.Query().Get("notice"), "billing")
}

func TestProtectAllowsGrantedPage(t *testing.T) {
	h := Protect(Static(Requirement{PageSlug: "reports"}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/dashboard/pages/reports", nil)
	req = req.WithContext(session.WithRequestContext(context.Background(), session.RequestContext{Claims: claims()}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestUnauthorizedEchoesNotice(t *testing.T) {
	rr := httptest.NewRecorder()
	q := url.Values{"notice": {Notice(Requirement{PageSlug: "secrets"})}}
	Unauthorized(rr, httptest.NewRequest(http.MethodGet, UnauthorizedPath+"?"+q.Encode(), nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), `secrets`)
	assert.Contains(t, rr.Body.String(), `"success":false`)
}
