package gatekeeper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/rbacadmin/internal/audit"
	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/principal/principaltest"
	"github.com/odyssey-erp/rbacadmin/internal/rbac"
	"github.com/odyssey-erp/rbacadmin/internal/session"
)

type captured struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captured) Emit(e audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

type setup struct {
	store *principaltest.Store
	codec *session.Codec
	user  principal.User
	audit *captured
	gk    *Gatekeeper
}

func newSetup(t *testing.T) setup {
	t.Helper()
	store := principaltest.New()
	role := store.SeedRole("USER", true, "read:users")
	user := store.SeedUser(principal.User{Email: "user@example.com", RoleID: &role.ID})
	codec := session.NewCodec("secret", "rbacadmin", time.Hour, rbac.NewBuilder(store))
	events := &captured{}
	gk := New(codec, events, nil, nil, Config{Cookie: session.CookieConfig{Name: "rbac_session"}})
	return setup{store: store, codec: codec, user: user, audit: events, gk: gk}
}

func okHandler(seen *session.RequestContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = session.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAnonymousProtectedRequestRedirects(t *testing.T) {
	s := newSetup(t)
	var seen session.RequestContext
	req := httptest.NewRequest(http.MethodGet, "/dashboard/users?page=2", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	req.Header.Set("User-Agent", "probe")
	rr := httptest.NewRecorder()

	s.gk.Middleware(okHandler(&seen)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	loc := rr.Header().Get("Location")
	assert.True(t, strings.HasPrefix(loc, "/login?callbackUrl="), loc)
	assert.Contains(t, loc, "%2Fdashboard%2Fusers%3Fpage%3D2")

	require.Len(t, s.audit.events, 1)
	e := s.audit.events[0]
	assert.Equal(t, audit.ActionFailedLogin, e.Action)
	assert.Equal(t, "/dashboard/users", e.Details["pathname"])
	assert.Equal(t, "198.51.100.7", e.IPAddress)
	assert.Equal(t, "probe", e.UserAgent)
	assert.Nil(t, e.UserID)
}

func TestValidTokenProceedsWithRequestContext(t *testing.T) {
	s := newSetup(t)
	token, err := s.codec.Issue(s.user, rbac.Snapshot{})
	require.NoError(t, err)

	var seen session.RequestContext
	req := httptest.NewRequest(http.MethodGet, "/api/protected/users", nil)
	req.AddCookie(&http.Cookie{Name: "rbac_session", Value: token.Raw})
	rr := httptest.NewRecorder()
	s.gk.Middleware(okHandler(&seen)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.True(t, seen.Authenticated())
	assert.True(t, seen.FromCookie)
	assert.Equal(t, []string{"read:users"}, seen.Claims.Permissions)

	require.Len(t, s.audit.events, 1)
	assert.Equal(t, audit.ActionView, s.audit.events[0].Action)
	require.NotNil(t, s.audit.events[0].UserID)
	assert.Equal(t, s.user.ID, *s.audit.events[0].UserID)
}

func TestDisabledUserTokenIsRejectedAtEdge(t *testing.T) {
	s := newSetup(t)
	token, err := s.codec.Issue(s.user, rbac.Snapshot{})
	require.NoError(t, err)
	_, err = s.store.SetUserDisabled(context.Background(), s.user.ID, true)
	require.NoError(t, err)

	var seen session.RequestContext
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: "rbac_session", Value: token.Raw})
	rr := httptest.NewRecorder()
	s.gk.Middleware(okHandler(&seen)).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Contains(t, rr.Header().Get("Set-Cookie"), "rbac_session=;")
}

func TestPublicPathsPassThroughWithoutAudit(t *testing.T) {
	s := newSetup(t)
	var seen session.RequestContext
	rr := httptest.NewRecorder()
	s.gk.Middleware(okHandler(&seen)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboards", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, seen.Authenticated())
	assert.Empty(t, s.audit.events)
}

type failingDecoder struct{}

func (failingDecoder) Decode(context.Context, string) (*session.Claims, error) {
	return nil, errors.New("store unavailable")
}

func TestStoreOutageFailsClosed(t *testing.T) {
	gk := New(failingDecoder{}, nil, nil, nil, Config{Cookie: session.CookieConfig{Name: "rbac_session"}, LoginPath: "/signin"})
	req := httptest.NewRequest(http.MethodGet, "/reset-password/verify", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rr := httptest.NewRecorder()

	gk.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Location"), "/signin?"))
}

func TestProtectedMatchesSegments(t *testing.T) {
	gk := New(failingDecoder{}, nil, nil, nil, Config{})
	assert.True(t, gk.Protected("/dashboard"))
	assert.True(t, gk.Protected("/dashboard/roles/1"))
	assert.True(t, gk.Protected("/api/protected/users"))
	assert.False(t, gk.Protected("/api/auth/login"))
	assert.False(t, gk.Protected("/dashboards"))
}
