package roles

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/rbacadmin/internal/audit"
	"github.com/odyssey-erp/rbacadmin/internal/platform/httpx"
	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/rbac"
	"github.com/odyssey-erp/rbacadmin/internal/shared"
)

// Handler manages role management endpoints.
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

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Post("/", h.createRole)
	r.Get("/{id}", h.getRole)
	r.Put("/{id}", h.updateRole)
	r.Delete("/{id}", h.deleteRole)
	r.Put("/{id}/default", h.setDefault)
	r.Put("/{id}/permissions", h.setPermissions)
	r.Put("/{id}/pages", h.setPages)
}

type roleRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=50"`
	Description string `json:"description" validate:"max=255"`
	IsDefault   bool   `json:"isDefault"`
}

type idsRequest struct {
	IDs []int64 `json:"ids" validate:"dive,gt=0"`
}

type listResponse struct {
	Roles      []Role            `json:"roles"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermRolesRead) {
		return
	}
	search, page, limit := shared.ListQuery(r)
	filter := principal.ListFilter{Search: search, Page: page, Limit: limit}.Normalize()
	roles, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", listResponse{Roles: roles, Pagination: shared.NewPagination(filter.Page, filter.Limit, total)})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermRolesAdd) {
		return
	}
	var req roleRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.Create(r.Context(), req.Name, req.Description, req.IsDefault)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	h.emit(r, audit.ActionCreate, map[string]any{"role_id": role.ID, "name": role.Name, "is_default": role.IsDefault})
	httpx.OK(w, http.StatusCreated, "Role created", role)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermRolesReadDetails) {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", detail)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermRolesUpdate) {
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
	role, err := h.service.Update(r.Context(), id, req.Name, req.Description)
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	h.emit(r, audit.ActionUpdate, map[string]any{"role_id": id, "name": role.Name})
	httpx.OK(w, http.StatusOK, "Role updated", role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermRolesDelete) {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	h.emit(r, audit.ActionDelete, map[string]any{"role_id": id})
	httpx.OK(w, http.StatusOK, "Role deleted", nil)
}

func (h *Handler) setDefault(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermRolesUpdate) {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.SetDefault(r.Context(), id)
	if err != nil {
		h.fail(w, "set default role", err)
		return
	}
	h.emit(r, audit.ActionAdmin, map[string]any{"role_id": id, "default": true})
	httpx.OK(w, http.StatusOK, "Default role updated", role)
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermRolesUpdatePermissions) {
		return
	}
	h.replaceGrants(w, r, "permissions", h.service.SetPermissions)
}

func (h *Handler) setPages(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermRolesUpdatePages) {
		return
	}
	h.replaceGrants(w, r, "pages", h.service.SetPages)
}

func (h *Handler) replaceGrants(w http.ResponseWriter, r *http.Request, kind string, replace func(context.Context, int64, []int64) (Detail, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req idsRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := replace(r.Context(), id, req.IDs)
	if err != nil {
		h.fail(w, "replace role "+kind, err)
		return
	}
	h.emit(r, audit.ActionPermissionChange, map[string]any{"role_id": id, kind: req.IDs})
	httpx.OK(w, http.StatusOK, "Role "+kind+" updated", detail)
}

func (h *Handler) emit(r *http.Request, action audit.Action, details map[string]any) {
	actor, _ := h.guard.Subject(r.Context())
	h.audit.Emit(audit.RequestEvent(r, actor, action, "role", details))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
