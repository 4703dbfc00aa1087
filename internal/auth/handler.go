package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/rbacadmin/internal/audit"
	"github.com/odyssey-erp/rbacadmin/internal/observability"
	"github.com/odyssey-erp/rbacadmin/internal/platform/httpx"
	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/rbac"
	"github.com/odyssey-erp/rbacadmin/internal/session"
	"github.com/odyssey-erp/rbacadmin/internal/shared"
)

const stateCookie = "rbacadmin_oidc_state"

// Sessions issues and revokes session tokens.
type Sessions interface {
	Issue(user principal.User, snap rbac.Snapshot) (session.Token, error)
	Revoke(ctx context.Context, claims *session.Claims) error
}

// HandlerConfig carries the HTTP-facing settings.
type HandlerConfig struct {
	Cookie session.CookieConfig
	// AttemptsPerMinute limits credential endpoints per client IP.
	AttemptsPerMinute int
	// AfterLogin is where federated logins land.
	AfterLogin string
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	sessions  Sessions
	csrf      *shared.CSRFManager
	audit     audit.Emitter
	metrics   *observability.Metrics
	provider  FederatedProvider
	validator *validator.Validate
	cfg       HandlerConfig
}

// NewHandler constructs a Handler instance. provider may be nil when
// federated login is not configured.
func NewHandler(logger *slog.Logger, service *Service, sessions Sessions, csrf *shared.CSRFManager, emitter audit.Emitter, metrics *observability.Metrics, provider FederatedProvider, cfg HandlerConfig) *Handler {
	if cfg.AttemptsPerMinute <= 0 {
		cfg.AttemptsPerMinute = 10
	}
	if cfg.AfterLogin == "" {
		cfg.AfterLogin = "/dashboard"
	}
	if emitter == nil {
		emitter = audit.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		sessions:  sessions,
		csrf:      csrf,
		audit:     emitter,
		metrics:   metrics,
		provider:  provider,
		validator: httpx.NewValidator(),
		cfg:       cfg,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(h.cfg.AttemptsPerMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Fail(w, http.StatusTooManyRequests, "Too many attempts. Please try again later.")
		}),
	)

	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/register", h.handleRegister)
		gr.Post("/login", h.handleLogin)
		gr.Post("/forgot-password", h.handleForgotPassword)
		gr.Post("/verify-reset-token", h.handleVerifyResetToken)
		gr.Post("/reset-password", h.handleResetPassword)
		gr.Post("/verify-email", h.handleVerifyEmail)
	})
	r.Post("/logout", h.handleLogout)
	r.Get("/session", h.handleSession)
	if h.provider != nil {
		r.Get("/oidc/login", h.handleOIDCLogin)
		r.Get("/oidc/callback", h.handleOIDCCallback)
	}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type resetRequest struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

type sessionUser struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

type sessionResponse struct {
	User        sessionUser    `json:"user"`
	Role        string         `json:"role"`
	Permissions []string       `json:"permissions"`
	Pages       []rbac.PageRef `json:"pages"`
	CSRFToken   string         `json:"csrfToken,omitempty"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	Token       string         `json:"token,omitempty"`
}

type failureResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Reason   Reason `json:"reason"`
	Redirect string `json:"redirect,omitempty"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Register(r.Context(), RegisterInput(req))
	if err != nil {
		h.respondFlowError(w, "register", err)
		return
	}
	h.emit(r, audit.Event{
		UserID:   audit.UserRef(user.ID),
		Action:   audit.ActionCreate,
		Resource: "user",
		Details:  map[string]any{"email": user.Email, "method": "register"},
	})
	httpx.OK(w, http.StatusCreated, "Registration successful. Please check your email to verify your account.", sessionUser{ID: user.ID, Email: user.Email, Name: user.Name})
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.VerifyEmail(r.Context(), req.Token); err != nil {
		h.respondFlowError(w, "verify email", err)
		return
	}
	httpx.OK(w, http.StatusOK, "Email verified successfully", nil)
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.respondFlowError(w, "forgot password", err)
		return
	}
	httpx.OK(w, http.StatusOK, "If an account with that email exists, a password reset link has been sent.", nil)
}

func (h *Handler) handleVerifyResetToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.CheckResetToken(r.Context(), req.Token); err != nil {
		h.respondFlowError(w, "verify reset token", err)
		return
	}
	httpx.OK(w, http.StatusOK, "Token is valid", map[string]bool{"valid": true})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password, req.ConfirmPassword); err != nil {
		h.respondFlowError(w, "reset password", err)
		return
	}
	h.emit(r, audit.Event{
		Action:   audit.ActionPasswordChange,
		Resource: "user",
		Details:  map[string]any{"method": "reset"},
	})
	httpx.OK(w, http.StatusOK, "Password has been reset successfully", nil)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	identity, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if f, ok := AsFailure(err); ok {
			h.metrics.LoginAttempt("rejected")
			h.emit(r, audit.Event{
				Action:   audit.ActionFailedLogin,
				Resource: "credentials",
				Details:  map[string]any{"email": principal.NormalizeEmail(req.Email), "reason": string(f.Reason)},
			})
			httpx.JSON(w, f.Status(), failureResponse{Message: f.Message(), Reason: f.Reason, Redirect: f.Redirect})
			return
		}
		h.metrics.LoginAttempt("error")
		h.logger.Error("login", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	tok, err := h.startSession(w, identity)
	if err != nil {
		h.metrics.LoginAttempt("error")
		h.logger.Error("issue session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.LoginAttempt("success")
	h.emit(r, audit.Event{
		UserID:   audit.UserRef(identity.User.ID),
		Action:   audit.ActionLogin,
		Resource: "credentials",
		Details:  map[string]any{"email": identity.User.Email, "role": identity.Snapshot.Role},
	})
	resp := h.sessionBody(identity.User, identity.Snapshot, tok.ID, tok.ExpiresAt)
	resp.Token = tok.Raw
	httpx.OK(w, http.StatusOK, "Login successful", resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	rc := session.FromContext(r.Context())
	h.cfg.Cookie.ClearCookie(w)
	if !rc.Authenticated() {
		httpx.OK(w, http.StatusOK, "Logged out", nil)
		return
	}
	if err := h.sessions.Revoke(r.Context(), rc.Claims); err != nil {
		h.logger.Warn("revoke session", slog.Any("error", err))
	}
	userID, _ := rc.Claims.UserID()
	h.emit(r, audit.Event{
		UserID:   audit.UserRef(userID),
		Action:   audit.ActionLogout,
		Resource: "session",
		Details:  map[string]any{"jti": rc.Claims.ID},
	})
	httpx.OK(w, http.StatusOK, "Logged out", nil)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	rc := session.FromContext(r.Context())
	if !rc.Authenticated() {
		httpx.Fail(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	userID, _ := rc.Claims.UserID()
	var expires time.Time
	if rc.Claims.ExpiresAt != nil {
		expires = rc.Claims.ExpiresAt.Time
	}
	user := principal.User{ID: userID, Email: rc.Claims.Email, Name: rc.Claims.Name}
	httpx.OK(w, http.StatusOK, "", h.sessionBody(user, rc.Claims.Snapshot(), rc.Claims.ID, expires))
}

func (h *Handler) handleOIDCLogin(w http.ResponseWriter, r *http.Request) {
	state, err := NewRawToken()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

func (h *Handler) handleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(stateCookie)
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/", MaxAge: -1, HttpOnly: true, Secure: h.cfg.Cookie.Secure})
	if err != nil || c.Value == "" || c.Value != r.URL.Query().Get("state") {
		httpx.Fail(w, http.StatusBadRequest, "Invalid login state")
		return
	}
	profile, err := h.provider.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.logger.Warn("oidc exchange", slog.Any("error", err))
		httpx.Fail(w, http.StatusUnauthorized, "Federated login failed")
		return
	}
	identity, err := h.service.FederatedSignIn(r.Context(), profile)
	if err != nil {
		if f, ok := AsFailure(err); ok {
			h.metrics.LoginAttempt("rejected")
			h.emit(r, audit.Event{
				Action:   audit.ActionFailedLogin,
				Resource: h.provider.Name(),
				Details:  map[string]any{"email": principal.NormalizeEmail(profile.Email), "reason": string(f.Reason)},
			})
			httpx.JSON(w, f.Status(), failureResponse{Message: f.Message(), Reason: f.Reason, Redirect: f.Redirect})
			return
		}
		h.metrics.LoginAttempt("error")
		h.logger.Error("federated sign in", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if _, err := h.startSession(w, identity); err != nil {
		h.metrics.LoginAttempt("error")
		h.logger.Error("issue session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.LoginAttempt("success")
	h.emit(r, audit.Event{
		UserID:   audit.UserRef(identity.User.ID),
		Action:   audit.ActionLogin,
		Resource: h.provider.Name(),
		Details:  map[string]any{"email": identity.User.Email, "role": identity.Snapshot.Role},
	})
	http.Redirect(w, r, h.cfg.AfterLogin, http.StatusSeeOther)
}

func (h *Handler) startSession(w http.ResponseWriter, identity Identity) (session.Token, error) {
	tok, err := h.sessions.Issue(identity.User, identity.Snapshot)
	if err != nil {
		return session.Token{}, err
	}
	h.cfg.Cookie.SetCookie(w, tok)
	return tok, nil
}

func (h *Handler) sessionBody(user principal.User, snap rbac.Snapshot, jti string, expires time.Time) sessionResponse {
	resp := sessionResponse{
		User:        sessionUser{ID: user.ID, Email: user.Email, Name: user.Name, Image: user.Image},
		Role:        snap.Role,
		Permissions: snap.Permissions,
		Pages:       snap.Pages,
		ExpiresAt:   expires,
	}
	if h.csrf != nil {
		resp.CSRFToken = h.csrf.Token(jti)
	}
	return resp
}

func (h *Handler) emit(r *http.Request, ev audit.Event) {
	client := shared.ClientFromRequest(r)
	ev.IPAddress = client.IPAddress
	ev.UserAgent = client.UserAgent
	h.audit.Emit(ev)
}

func (h *Handler) respondFlowError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrEmailTaken):
		httpx.Fail(w, http.StatusConflict, "An account with this email already exists")
	case errors.Is(err, ErrTokenExpired):
		httpx.Fail(w, http.StatusBadRequest, "Token has expired. Please request a new one.")
	case errors.Is(err, ErrTokenInvalid):
		httpx.Fail(w, http.StatusBadRequest, "Invalid or expired token")
	case errors.Is(err, ErrPasswordMismatch):
		httpx.Fail(w, http.StatusBadRequest, "Passwords do not match")
	case errors.Is(err, ErrPasswordUnsupported):
		httpx.Fail(w, http.StatusBadRequest, "This account signs in with a linked provider and has no password")
	case errors.Is(err, ErrUserNotFound):
		httpx.Fail(w, http.StatusNotFound, "User not found")
	case errors.Is(err, ErrMailUnavailable):
		httpx.Fail(w, http.StatusServiceUnavailable, "Could not send email. Please try again later.")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
