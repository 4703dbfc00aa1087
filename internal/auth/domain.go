package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/rbac"
)

// Reason is the closed set of credential rejection causes.
type Reason string

const (
	ReasonInvalidCredentials Reason = "INVALID_CREDENTIALS"
	ReasonAccountDisabled    Reason = "ACCOUNT_DISABLED"
	ReasonAccountDeleted     Reason = "ACCOUNT_DELETED"
	ReasonEmailNotVerified   Reason = "EMAIL_NOT_VERIFIED"
	ReasonNoPasswordSet      Reason = "NO_PASSWORD_SET"
)

// VerifyEmailPath is the redirect hint attached to EMAIL_NOT_VERIFIED.
const VerifyEmailPath = "/verify-email"

// Failure is a credential rejection. Unknown email and wrong password share
// ReasonInvalidCredentials and one message.
type Failure struct {
	Reason   Reason
	Redirect string
}

func (f *Failure) Error() string {
	return "auth: " + string(f.Reason)
}

// Message is the user-facing text for the reason.
func (f *Failure) Message() string {
	switch f.Reason {
	case ReasonAccountDisabled:
		return "This account has been disabled. Contact support."
	case ReasonAccountDeleted:
		return "This account has been deleted. Contact support."
	case ReasonEmailNotVerified:
		return "Email not verified. Please verify your email before logging in."
	case ReasonNoPasswordSet:
		return "Password not set for this account. Sign in with your linked provider."
	default:
		return "Invalid email or password"
	}
}

// Status is the HTTP status for the reason.
func (f *Failure) Status() int {
	switch f.Reason {
	case ReasonAccountDisabled, ReasonAccountDeleted, ReasonEmailNotVerified:
		return http.StatusForbidden
	case ReasonNoPasswordSet:
		return http.StatusBadRequest
	default:
		return http.StatusUnauthorized
	}
}

func fail(reason Reason) *Failure {
	f := &Failure{Reason: reason}
	if reason == ReasonEmailNotVerified {
		f.Redirect = VerifyEmailPath
	}
	return f
}

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}

// Identity is an authenticated user with a freshly built snapshot.
type Identity struct {
	User     principal.User
	Snapshot rbac.Snapshot
}

// Purpose scopes a verification token.
type Purpose string

const (
	PurposePasswordReset     Purpose = "password_reset"
	PurposeEmailVerification Purpose = "email_verification"
)

// VerificationToken is a single-use secret. Only the hash is stored.
type VerificationToken struct {
	Identifier string
	Purpose    Purpose
	TokenHash  string
	Expires    time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t VerificationToken) Expired(now time.Time) bool {
	return !now.Before(t.Expires)
}

// Flow errors returned by Service.
var (
	ErrTokenInvalid        = errors.New("auth: verification token invalid")
	ErrTokenExpired        = errors.New("auth: verification token expired")
	ErrEmailTaken          = errors.New("auth: email already registered")
	ErrPasswordUnsupported = errors.New("auth: account has no password")
	ErrPasswordMismatch    = errors.New("auth: passwords do not match")
	ErrMailUnavailable     = errors.New("auth: mail could not be queued")
	ErrUserNotFound        = errors.New("auth: user not found")
)

// RegisterInput is a self-registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// FederatedProfile is the identity asserted by an external provider.
type FederatedProfile struct {
	Provider      string
	Email         string
	EmailVerified bool
	Name          string
	Image         string
}

// MailKind selects the mail template.
type MailKind string

const (
	MailVerifyEmail   MailKind = "verify_email"
	MailPasswordReset MailKind = "password_reset"
)

// Mail is an outbound message request; delivery happens elsewhere.
type Mail struct {
	Kind MailKind `json:"kind"`
	To   string   `json:"to"`
	Name string   `json:"name"`
	Link string   `json:"link"`
}
