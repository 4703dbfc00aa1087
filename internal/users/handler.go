package users

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/rbacadmin/internal/audit"
	"github.com/odyssey-erp/rbacadmin/internal/platform/httpx"
	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/rbac"
	"github.com/odyssey-erp/rbacadmin/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     *rbac.Guard
	audit     audit.Emitter
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard *rbac.Guard, emitter audit.Emitter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if emitter == nil {
		emitter = audit.Discard
	}
	return &Handler{logger: logger, service: service, guard: guard, audit: emitter, validator: httpx.NewValidator()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.Post("/", h.createUser)
	r.Get("/check-permission", h.checkPermission)
	r.Get("/{id}", h.getUser)
	r.Patch("/{id}", h.updateUser)
	r.Delete("/{id}", h.deleteUser)
	r.Put("/{id}/disable", h.setDisabled)
	r.Put("/{id}/soft-delete", h.setDeleted)
	r.Put("/{id}/role", h.assignRole)
}

type createRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	RoleID   *int64 `json:"roleId" validate:"omitempty,gt=0"`
}

type updateRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Username *string `json:"username" validate:"omitempty,min=3,max=50"`
}

type flagRequest struct {
	Value bool `json:"value"`
}

type roleRequest struct {
	RoleID int64 `json:"roleId" validate:"required,gt=0"`
}

type listResponse struct {
	Users      []User            `json:"users"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermUsersRead) {
		return
	}
	search, page, limit := shared.ListQuery(r)
	filter := principal.ListFilter{Search: search, Page: page, Limit: limit}.Normalize()
	users, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", listResponse{Users: users, Pagination: shared.NewPagination(filter.Page, filter.Limit, total)})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermUsersCreate) {
		return
	}
	var req createRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Create(r.Context(), CreateInput(req))
	if err != nil {
		h.fail(w, "create user", err)
		return
	}
	h.emit(r, audit.ActionCreate, map[string]any{"user_id": user.ID, "email": user.Email})
	httpx.OK(w, http.StatusCreated, "User created", user)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermUsersReadDetails) {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get user", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", detail)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermUsersUpdate) {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Update(r.Context(), id, req.Name, req.Username)
	if err != nil {
		h.fail(w, "update user", err)
		return
	}
	h.emit(r, audit.ActionUpdate, map[string]any{"user_id": id})
	httpx.OK(w, http.StatusOK, "User updated", user)
}

func (h *Handler) setDisabled(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermUsersDisable) {
		return
	}
	id, req, ok := h.flag(w, r)
	if !ok {
		return
	}
	user, err := h.service.SetDisabled(r.Context(), h.actor(r), id, req.Value)
	if err != nil {
		h.fail(w, "disable user", err)
		return
	}
	h.emit(r, audit.ActionAdmin, map[string]any{"user_id": id, "disabled": req.Value})
	httpx.OK(w, http.StatusOK, "User updated", user)
}

func (h *Handler) setDeleted(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermUsersSoftDelete) {
		return
	}
	id, req, ok := h.flag(w, r)
	if !ok {
		return
	}
	user, err := h.service.SetDeleted(r.Context(), h.actor(r), id, req.Value)
	if err != nil {
		h.fail(w, "soft delete user", err)
		return
	}
	action := audit.ActionDelete
	if !req.Value {
		action = audit.ActionAdmin
	}
	h.emit(r, action, map[string]any{"user_id": id, "deleted": req.Value, "soft": true})
	httpx.OK(w, http.StatusOK, "User updated", user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermUsersHardDelete) {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), h.actor(r), id); err != nil {
		h.fail(w, "delete user", err)
		return
	}
	h.emit(r, audit.ActionDelete, map[string]any{"user_id": id, "soft": false})
	httpx.OK(w, http.StatusOK, "User deleted", nil)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermUsersUpdateRole) {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req roleRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.AssignRole(r.Context(), id, req.RoleID)
	if err != nil {
		h.fail(w, "assign role", err)
		return
	}
	h.emit(r, audit.ActionPermissionChange, map[string]any{"user_id": id, "role_id": role.ID, "role": role.Name})
	httpx.OK(w, http.StatusOK, "Role assigned", map[string]any{"userId": id, "roleId": role.ID, "role": role.Name})
}

// checkPermission answers whether the caller holds a permission. It needs an
// authenticated caller but no specific grant.
func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.guard.Subject(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, rbac.MessageUnauthorized)
		return
	}
	permission := strings.TrimSpace(r.URL.Query().Get("permission"))
	if permission == "" {
		httpx.Fail(w, http.StatusBadRequest, "permission is required")
		return
	}
	has, err := h.service.HasPermission(r.Context(), actor, permission)
	if err != nil {
		h.fail(w, "check permission", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", map[string]any{"permission": permission, "hasPermission": has})
}

func (h *Handler) flag(w http.ResponseWriter, r *http.Request) (int64, flagRequest, bool) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, flagRequest{}, false
	}
	var req flagRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return 0, flagRequest{}, false
	}
	return id, req, true
}

func (h *Handler) actor(r *http.Request) int64 {
	id, _ := h.guard.Subject(r.Context())
	return id
}

func (h *Handler) emit(r *http.Request, action audit.Action, details map[string]any) {
	h.audit.Emit(audit.RequestEvent(r, h.actor(r), action, "user", details))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
