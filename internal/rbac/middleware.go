package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/rbacadmin/internal/observability"
	"github.com/odyssey-erp/rbacadmin/internal/platform/httpx"
)

// Denial messages returned by the guard.
const (
	MessageUnauthorized = "Unauthorized"
	MessageForbidden    = "Forbidden: You do not have required permission"
	MessageUnavailable  = "Authorization temporarily unavailable"
)

// SubjectFunc returns the authenticated user id carried by the request context.
type SubjectFunc func(ctx context.Context) (int64, bool)

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool
	Status  int
	Message string
}

// Guard is the per-endpoint permission check. It ignores whatever the session
// token claims and re-reads the principal store on every call.
type Guard struct {
	Builder *Builder
	Subject SubjectFunc
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewGuard wires a Guard.
func NewGuard(builder *Builder, subject SubjectFunc, logger *slog.Logger, metrics *observability.Metrics) *Guard {
	return &Guard{Builder: builder, Subject: subject, Logger: logger, Metrics: metrics}
}

// RequirePermission checks the caller for an exact, case-sensitive permission name.
func (g *Guard) RequirePermission(r *http.Request, permission string) Decision {
	decision := g.decide(r, permission)
	g.Metrics.GuardDecision(permission, outcome(decision))
	return decision
}

func (g *Guard) decide(r *http.Request, permission string) Decision {
	userID, ok := g.Subject(r.Context())
	if !ok {
		return Decision{Status: http.StatusUnauthorized, Message: MessageUnauthorized}
	}
	p, err := g.Builder.Resolve(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUnknownPrincipal) || errors.Is(err, ErrInactivePrincipal) {
			return Decision{Status: http.StatusUnauthorized, Message: MessageUnauthorized}
		}
		if g.Logger != nil {
			g.Logger.Error("rbac guard resolve", slog.Int64("user_id", userID), slog.String("permission", permission), slog.Any("error", err))
		}
		return Decision{Status: http.StatusServiceUnavailable, Message: MessageUnavailable}
	}
	if !p.Snapshot.Has(permission) {
		return Decision{Status: http.StatusForbidden, Message: MessageForbidden}
	}
	return Decision{Allowed: true, Status: http.StatusOK}
}

// Allow runs RequirePermission and writes the JSON denial when not allowed.
// Handlers call it before any side effect:
//
//	if !h.guard.Allow(w, r, shared.PermRolesDelete) {
//		return
//	}
func (g *Guard) Allow(w http.ResponseWriter, r *http.Request, permission string) bool {
	decision := g.RequirePermission(r, permission)
	if decision.Allowed {
		return true
	}
	httpx.JSON(w, decision.Status, httpx.Envelope{Success: false, Message: decision.Message})
	return false
}

// Require wraps the same check as router middleware.
func (g *Guard) Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.Allow(w, r, permission) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func outcome(d Decision) string {
	switch d.Status {
	case http.StatusOK:
		return "allowed"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	default:
		return "unavailable"
	}
}
