package profile

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/rbacadmin/internal/audit"
	"github.com/odyssey-erp/rbacadmin/internal/auth"
	"github.com/odyssey-erp/rbacadmin/internal/platform/httpx"
	"github.com/odyssey-erp/rbacadmin/internal/rbac"
)

// Handler serves the caller's own profile. Any authenticated, active user may use it.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	builder   *rbac.Builder
	subject   rbac.SubjectFunc
	audit     audit.Emitter
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, builder *rbac.Builder, subject rbac.SubjectFunc, emitter audit.Emitter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if emitter == nil {
		emitter = audit.Discard
	}
	return &Handler{logger: logger, service: service, builder: builder, subject: subject, audit: emitter, validator: httpx.NewValidator()}
}

// MountRoutes registers profile routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.get)
	r.Patch("/", h.update)
}

type updateRequest struct {
	Name            *string `json:"name" validate:"omitempty,min=1,max=100"`
	Username        *string `json:"username" validate:"omitempty,min=3,max=50"`
	Image           *string `json:"image" validate:"omitempty,url"`
	CurrentPassword string  `json:"currentPassword" validate:"required_with=NewPassword"`
	NewPassword     string  `json:"newPassword" validate:"omitempty,min=8,max=72"`
}

// caller resolves the active user behind the request or writes a 401/503.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := h.subject(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, rbac.MessageUnauthorized)
		return 0, false
	}
	if _, err := h.builder.Resolve(r.Context(), id); err != nil {
		if errors.Is(err, rbac.ErrUnknownPrincipal) || errors.Is(err, rbac.ErrInactivePrincipal) {
			httpx.Fail(w, http.StatusUnauthorized, rbac.MessageUnauthorized)
			return 0, false
		}
		h.logger.Error("profile resolve", slog.Any("error", err))
		httpx.Fail(w, http.StatusServiceUnavailable, rbac.MessageUnavailable)
		return 0, false
	}
	return id, true
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get profile", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := Update(req)
	p, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordUnsupported) {
			httpx.Fail(w, http.StatusBadRequest, "This account signs in with a linked provider and has no password")
			return
		}
		h.fail(w, "update profile", err)
		return
	}
	action := audit.ActionUpdate
	if in.PasswordChanged() {
		action = audit.ActionPasswordChange
	}
	h.audit.Emit(audit.RequestEvent(r, id, action, "profile", map[string]any{"user_id": id}))
	httpx.OK(w, http.StatusOK, "Profile updated", p)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
