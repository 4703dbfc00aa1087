package session

import "context"

// RequestContext is built once per request by the gatekeeper and read by
// every later layer.
type RequestContext struct {
	Token      string
	Claims     *Claims
	FromCookie bool
}

// Authenticated reports whether a valid token decoded.
func (rc RequestContext) Authenticated() bool {
	return rc.Claims != nil
}

type requestContextKey struct{}

// WithRequestContext stores rc in ctx.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext extracts the request context. The zero value is unauthenticated.
func FromContext(ctx context.Context) RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(RequestContext)
	return rc
}

// Subject returns the authenticated user id. It satisfies rbac.SubjectFunc.
func Subject(ctx context.Context) (int64, bool) {
	rc := FromContext(ctx)
	if rc.Claims == nil {
		return 0, false
	}
	id, err := rc.Claims.UserID()
	if err != nil {
		return 0, false
	}
	return id, true
}
