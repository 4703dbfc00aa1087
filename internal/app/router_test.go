package app

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/rbacadmin/internal/audit"
	"github.com/odyssey-erp/rbacadmin/internal/gatekeeper"
	"github.com/odyssey-erp/rbacadmin/internal/observability"
	"github.com/odyssey-erp/rbacadmin/internal/pages"
	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/principal/principaltest"
	"github.com/odyssey-erp/rbacadmin/internal/rbac"
	"github.com/odyssey-erp/rbacadmin/internal/session"
	"github.com/odyssey-erp/rbacadmin/internal/shared"
	_ "github.com/odyssey-erp/rbacadmin/internal/testing/guard"
	"github.com/odyssey-erp/rbacadmin/internal/users"
)

const cookieName = "rbacadmin_session"

type stack struct {
	store   *principaltest.Store
	codec   *session.Codec
	csrf    *shared.CSRFManager
	admin   principal.User
	target  principal.User
	handler http.Handler

	mu     sync.Mutex
	events []audit.Event
}

func newStack(t *testing.T) *stack {
	t.Helper()
	store := principaltest.New()
	role := store.SeedRole("ADMIN", false, shared.PermUsersRead, shared.PermUsersDisable)
	store.SeedPage("Reports", "reports", role.ID)
	store.SeedPage("Billing", "billing")
	s := &stack{
		store:  store,
		csrf:   shared.NewCSRFManager("csrf-secret"),
		admin:  store.SeedUser(principal.User{Email: "admin@example.com", Name: "Admin", RoleID: &role.ID}),
		target: store.SeedUser(principal.User{Email: "member@example.com", Name: "Member"}),
	}

	builder := rbac.NewBuilder(store)
	s.codec = session.NewCodec("token-secret", "rbacadmin", time.Hour, builder)
	emitter := audit.EmitterFunc(func(ev audit.Event) {
		s.mu.Lock()
		s.events = append(s.events, ev)
		s.mu.Unlock()
	})
	metrics := observability.NewMetrics()
	keeper := gatekeeper.New(s.codec, emitter, nil, metrics, gatekeeper.Config{
		Cookie: session.CookieConfig{Name: cookieName},
	})
	guard := rbac.NewGuard(builder, session.Subject, nil, metrics)

	s.handler = NewRouter(RouterParams{
		Config:       &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second},
		Gatekeeper:   keeper,
		CSRFManager:  s.csrf,
		Metrics:      metrics,
		UsersHandler: users.NewHandler(nil, users.NewService(store), guard, emitter),
		PagesHandler: pages.NewHandler(nil, pages.NewService(store, principal.SlugRegistry{principal.SlugKindPage: store}), guard, emitter),
	})
	return s
}

func (s *stack) issue(t *testing.T) session.Token {
	t.Helper()
	snap, err := rbac.NewBuilder(s.store).Build(t.Context(), s.admin.ID)
	require.NoError(t, err)
	tok, err := s.codec.Issue(s.admin, snap)
	require.NoError(t, err)
	return tok
}

func (s *stack) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *stack) actions() []audit.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Action, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Action)
	}
	return out
}

func TestHealthzAndSecureHeaders(t *testing.T) {
	s := newStack(t)
	rr := s.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestAnonymousDashboardRedirectsToLogin(t *testing.T) {
	s := newStack(t)
	rr := s.serve(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login?callbackUrl=%2Fdashboard", rr.Header().Get("Location"))
	assert.Contains(t, s.actions(), audit.ActionFailedLogin)
}

func TestDashboardListsGrantedPages(t *testing.T) {
	s := newStack(t)
	tok := s.issue(t)
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: tok.Raw})

	rr := s.serve(req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"role":"ADMIN"`)
	assert.Contains(t, rr.Body.String(), `"slug":"reports"`)
	assert.NotContains(t, rr.Body.String(), "billing")
	assert.Contains(t, s.actions(), audit.ActionView)
}

func TestDashboardPageFollowsPageGrants(t *testing.T) {
	s := newStack(t)
	tok := s.issue(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard/pages/reports", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Raw)
	rr := s.serve(req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/dashboard/pages/billing", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Raw)
	rr = s.serve(req)
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Location"), "/unauthorized?notice="))

	rr = s.serve(httptest.NewRequest(http.MethodGet, rr.Header().Get("Location"), nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "billing")
}

func TestCookieWritesRequireCSRFToken(t *testing.T) {
	s := newStack(t)
	tok := s.issue(t)
	path := fmt.Sprintf("/api/protected/users/%d/disable", s.target.ID)

	req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(`{"value":true}`))
	req.AddCookie(&http.Cookie{Name: cookieName, Value: tok.Raw})
	rr := s.serve(req)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid CSRF token")
	u, err := s.store.FindUserByID(t.Context(), s.target.ID)
	require.NoError(t, err)
	assert.False(t, u.IsDisabled)

	req = httptest.NewRequest(http.MethodPut, path, strings.NewReader(`{"value":true}`))
	req.AddCookie(&http.Cookie{Name: cookieName, Value: tok.Raw})
	req.Header.Set(shared.CSRFHeader, s.csrf.Token(tok.ID))
	rr = s.serve(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	u, err = s.store.FindUserByID(t.Context(), s.target.ID)
	require.NoError(t, err)
	assert.True(t, u.IsDisabled)
}

func TestBearerWritesSkipCSRF(t *testing.T) {
	s := newStack(t)
	tok := s.issue(t)
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/protected/users/%d/disable", s.target.ID), strings.NewReader(`{"value":true}`))
	req.Header.Set("Authorization", "Bearer "+tok.Raw)
	rr := s.serve(req)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestMetricsEndpointExposesAuthCounters(t *testing.T) {
	s := newStack(t)
	s.serve(httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	rr := s.serve(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `rbacadmin_gatekeeper_decisions_total{outcome="redirect"} 1`)
}

func TestCSRFExemptPaths(t *testing.T) {
	assert.True(t, csrfExempt("/api/auth/login"))
	assert.True(t, csrfExempt("/api/auth/reset-password"))
	assert.False(t, csrfExempt("/api/auth/logout"))
	assert.False(t, csrfExempt("/api/protected/users"))
}
