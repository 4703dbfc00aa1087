package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/rbacadmin/internal/auth"
	"github.com/odyssey-erp/rbacadmin/internal/gate"
	"github.com/odyssey-erp/rbacadmin/internal/gatekeeper"
	"github.com/odyssey-erp/rbacadmin/internal/observability"
	"github.com/odyssey-erp/rbacadmin/internal/pages"
	"github.com/odyssey-erp/rbacadmin/internal/permissions"
	"github.com/odyssey-erp/rbacadmin/internal/platform/httpx"
	"github.com/odyssey-erp/rbacadmin/internal/profile"
	"github.com/odyssey-erp/rbacadmin/internal/rbac"
	"github.com/odyssey-erp/rbacadmin/internal/roles"
	"github.com/odyssey-erp/rbacadmin/internal/session"
	"github.com/odyssey-erp/rbacadmin/internal/shared"
	"github.com/odyssey-erp/rbacadmin/internal/users"
	"github.com/odyssey-erp/rbacadmin/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	Gatekeeper  *gatekeeper.Gatekeeper
	CSRFManager *shared.CSRFManager
	Metrics     *observability.Metrics

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	RolesHandler       *roles.Handler
	PermissionsHandler *permissions.Handler
	PagesHandler       *pages.Handler
	ProfileHandler     *profile.Handler
	JobHandler         *jobs.Handler

	// RequestLog enables chi's request logger.
	RequestLog bool
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	mw := MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		CSRFManager: params.CSRFManager,
		Metrics:     params.Metrics,
	}
	if params.Gatekeeper != nil {
		mw.Gatekeeper = params.Gatekeeper.Middleware
	}
	for _, m := range MiddlewareStack(mw) {
		r.Use(m)
	}
	if params.RequestLog {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get(gate.UnauthorizedPath, gate.Unauthorized)

	if params.AuthHandler != nil {
		r.Route("/api/auth", params.AuthHandler.MountRoutes)
	}
	r.Route("/api/protected", func(r chi.Router) {
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.PagesHandler != nil {
			r.Route("/pages", params.PagesHandler.MountRoutes)
		}
		if params.ProfileHandler != nil {
			r.Route("/profile", params.ProfileHandler.MountRoutes)
		}
	})

	r.Route("/dashboard", func(r chi.Router) {
		r.Get("/", dashboard)
		if params.PagesHandler != nil {
			params.PagesHandler.MountDashboard(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}

type dashboardResponse struct {
	Role  string         `json:"role"`
	Pages []rbac.PageRef `json:"pages"`
}

// dashboard lists the navigation entries the session snapshot grants. The
// gatekeeper has already rejected anonymous callers on this prefix.
func dashboard(w http.ResponseWriter, r *http.Request) {
	claims := session.FromContext(r.Context()).Claims
	if claims == nil {
		httpx.Fail(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	pages := claims.Pages
	if pages == nil {
		pages = []rbac.PageRef{}
	}
	httpx.OK(w, http.StatusOK, "", dashboardResponse{Role: claims.Role, Pages: pages})
}
