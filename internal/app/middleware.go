package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/odyssey-erp/rbacadmin/internal/observability"
	"github.com/odyssey-erp/rbacadmin/internal/platform/httpx"
	"github.com/odyssey-erp/rbacadmin/internal/session"
	"github.com/odyssey-erp/rbacadmin/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger      *slog.Logger
	Config      *Config
	Gatekeeper  func(http.Handler) http.Handler
	CSRFManager *shared.CSRFManager
	Metrics     *observability.Metrics
	// RequestsPerMinute caps requests per client IP. Zero uses 120.
	RequestsPerMinute int
}

// csrfExemptPrefix covers the endpoints that run before a session exists.
const csrfExemptPrefix = "/api/auth/"

// MiddlewareStack installs the middleware chain. The gatekeeper runs before
// CSRF verification because the token is bound to the decoded session id.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     "geolocation=(), camera=(), microphone=()",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !cfg.Config.IsProduction(),
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 120
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(perMinute, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				httpx.Fail(w, http.StatusTooManyRequests, "Too many requests")
			}),
		),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	if cfg.Gatekeeper != nil {
		middlewares = append(middlewares, cfg.Gatekeeper)
	}
	if cfg.CSRFManager != nil {
		middlewares = append(middlewares, CSRF(cfg.CSRFManager, logger))
	}
	return middlewares
}

// CSRF rejects unsafe requests that authenticate with the session cookie but
// do not echo the CSRF token derived from the session id. Bearer requests are
// not exposed to cross-site submission and pass through.
func CSRF(manager *shared.CSRFManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if safeMethod(r.Method) || csrfExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			rc := session.FromContext(r.Context())
			if !rc.FromCookie || !rc.Authenticated() {
				next.ServeHTTP(w, r)
				return
			}
			token := r.Header.Get(shared.CSRFHeader)
			if token == "" {
				token = r.PostFormValue(shared.CSRFFormField)
			}
			if err := manager.VerifyToken(rc.Claims.ID, token); err != nil {
				logger.Warn("csrf validation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
				httpx.Fail(w, http.StatusForbidden, "Invalid CSRF token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func csrfExempt(path string) bool {
	return strings.HasPrefix(path, csrfExemptPrefix) && path != csrfExemptPrefix+"logout"
}
