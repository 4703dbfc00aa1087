package shared

import (
	"errors"

	"github.com/odyssey-erp/rbacadmin/internal/platform/httpx"
)

// Domain sentinels share identity with the httpx ones so RespondError maps them.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = httpx.ErrNotFound
	// ErrDuplicate indicates a unique attribute is already taken.
	ErrDuplicate = httpx.ErrDuplicate
	// ErrValidation indicates malformed or incomplete input.
	ErrValidation = httpx.ErrValidation
	// ErrUnauthorized indicates the caller has no valid session.
	ErrUnauthorized = httpx.ErrUnauthorized
	// ErrForbidden indicates the caller lacks the required permission.
	ErrForbidden = httpx.ErrForbidden
	// ErrUnavailable indicates a backing dependency failed.
	ErrUnavailable = httpx.ErrUnavailable
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
