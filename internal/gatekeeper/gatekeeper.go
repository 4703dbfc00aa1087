// Package gatekeeper is the coarse edge check run before routing. It decodes
// the session token once per request and only answers whether any
// authenticated principal is present; permission checks belong to rbac.Guard.
package gatekeeper

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/odyssey-erp/rbacadmin/internal/audit"
	"github.com/odyssey-erp/rbacadmin/internal/observability"
	"github.com/odyssey-erp/rbacadmin/internal/session"
	"github.com/odyssey-erp/rbacadmin/internal/shared"
)

// DefaultProtectedPrefixes require an authenticated principal.
var DefaultProtectedPrefixes = []string{"/dashboard", "/api/protected", "/reset-password/verify"}

// Decoder verifies and refreshes session tokens.
type Decoder interface {
	Decode(ctx context.Context, raw string) (*session.Claims, error)
}

// Config controls which paths are gated and where to send anonymous callers.
type Config struct {
	Cookie            session.CookieConfig
	ProtectedPrefixes []string
	LoginPath         string
}

// Gatekeeper builds the per-request session.RequestContext.
type Gatekeeper struct {
	decoder Decoder
	audit   audit.Emitter
	logger  *slog.Logger
	metrics *observability.Metrics
	cfg     Config
}

// New constructs a Gatekeeper.
func New(decoder Decoder, emitter audit.Emitter, logger *slog.Logger, metrics *observability.Metrics, cfg Config) *Gatekeeper {
	if len(cfg.ProtectedPrefixes) == 0 {
		cfg.ProtectedPrefixes = DefaultProtectedPrefixes
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if emitter == nil {
		emitter = audit.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gatekeeper{decoder: decoder, audit: emitter, logger: logger, metrics: metrics, cfg: cfg}
}

// Middleware decodes the token and gates protected prefixes.
func (g *Gatekeeper) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := g.authenticate(r)
		r = r.WithContext(session.WithRequestContext(r.Context(), rc))

		if !g.Protected(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		client := shared.ClientFromRequest(r)
		if !rc.Authenticated() {
			g.metrics.GatekeeperDecision("redirect")
			g.audit.Emit(audit.Event{
				Action:    audit.ActionFailedLogin,
				Resource:  "middleware-auth-check",
				Details:   map[string]any{"pathname": r.URL.Path},
				IPAddress: client.IPAddress,
				UserAgent: client.UserAgent,
			})
			if rc.FromCookie {
				g.cfg.Cookie.ClearCookie(w)
			}
			http.Redirect(w, r, g.loginURL(r), http.StatusSeeOther)
			return
		}

		g.metrics.GatekeeperDecision("allow")
		userID, _ := rc.Claims.UserID()
		g.audit.Emit(audit.Event{
			UserID:    audit.UserRef(userID),
			Action:    audit.ActionView,
			Resource:  r.URL.Path,
			Details:   map[string]any{"message": "edge authentication success"},
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
		})
		next.ServeHTTP(w, r)
	})
}

// Protected reports whether path falls under a protected prefix. Matching is
// per path segment, so /dashboard covers /dashboard/users but not /dashboards.
func (g *Gatekeeper) Protected(path string) bool {
	for _, prefix := range g.cfg.ProtectedPrefixes {
		prefix = strings.TrimSuffix(prefix, "/")
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func (g *Gatekeeper) authenticate(r *http.Request) session.RequestContext {
	raw, fromCookie := session.Extract(r, g.cfg.Cookie.Name)
	rc := session.RequestContext{FromCookie: fromCookie}
	if raw == "" {
		return rc
	}
	claims, err := g.decoder.Decode(r.Context(), raw)
	if err != nil {
		if !errors.Is(err, session.ErrInvalidToken) {
			g.logger.Error("gatekeeper decode token", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		return rc
	}
	rc.Token = raw
	rc.Claims = claims
	return rc
}

func (g *Gatekeeper) loginURL(r *http.Request) string {
	q := url.Values{}
	q.Set("callbackUrl", r.URL.RequestURI())
	return g.cfg.LoginPath + "?" + q.Encode()
}
