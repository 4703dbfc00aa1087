// Package gate decides what a client may render from the snapshot carried in
// its session. It is advisory: every capability it hides is also enforced by
// rbac.Guard on the server.
package gate

import (
	"net/http"
	"net/url"

	"github.com/odyssey-erp/rbacadmin/internal/platform/httpx"
	"github.com/odyssey-erp/rbacadmin/internal/session"
)

// UnauthorizedPath is where denied callers are sent.
const UnauthorizedPath = "/unauthorized"

// Requirement names a permission and/or page slug. Empty fields are ignored.
type Requirement struct {
	Permission string
	PageSlug   string
}

// HasPermission reports whether the claims carry the permission.
func HasPermission(claims *session.Claims, permission string) bool {
	return claims != nil && claims.Snapshot().Has(permission)
}

// HasPage reports whether the claims grant the page slug.
func HasPage(claims *session.Claims, slug string) bool {
	return claims != nil && claims.Snapshot().HasPage(slug)
}

// Check reports whether claims satisfy every part of req.
func Check(claims *session.Claims, req Requirement) bool {
	if claims == nil {
		return false
	}
	if req.Permission != "" && !HasPermission(claims, req.Permission) {
		return false
	}
	if req.PageSlug != "" && !HasPage(claims, req.PageSlug) {
		return false
	}
	return true
}

// Notice builds the message shown on the unauthorized view.
func Notice(req Requirement) string {
	switch {
	case req.PageSlug != "":
		return "You do not have access to the page \"" + req.PageSlug + "\""
	case req.Permission != "":
		return "You do not have the \"" + req.Permission + "\" permission"
	default:
		return "You are not signed in"
	}
}

// Protect redirects to the unauthorized view when the request's snapshot
// does not satisfy req. The requirement is resolved per request so callers
// can derive it from route parameters.
func Protect(resolve func(*http.Request) Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := resolve(r)
			if Check(session.FromContext(r.Context()).Claims, req) {
				next.ServeHTTP(w, r)
				return
			}
			q := url.Values{}
			q.Set("notice", Notice(req))
			http.Redirect(w, r, UnauthorizedPath+"?"+q.Encode(), http.StatusSeeOther)
		})
	}
}

// Static returns a resolver for a fixed requirement.
func Static(req Requirement) func(*http.Request) Requirement {
	return func(*http.Request) Requirement { return req }
}

// Unauthorized renders the denial notice passed by Protect.
func Unauthorized(w http.ResponseWriter, r *http.Request) {
	notice := r.URL.Query().Get("notice")
	if notice == "" {
		notice = "You do not have access to this page"
	}
	httpx.Fail(w, http.StatusForbidden, notice)
}
