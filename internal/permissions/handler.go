package permissions

import (
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

// Handler exposes the permission catalogue.
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

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

type permissionRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=255"`
}

type listResponse struct {
	Permissions []Permission      `json:"permissions"`
	Pagination  shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermPermissionsRead) {
		return
	}
	search, page, limit := shared.ListQuery(r)
	filter := principal.ListFilter{Search: search, Page: page, Limit: limit}.Normalize()
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", listResponse{Permissions: items, Pagination: shared.NewPagination(filter.Page, filter.Limit, total)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermPermissionsAdd) {
		return
	}
	var req permissionRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		h.fail(w, "create permission", err)
		return
	}
	h.emit(r, audit.ActionCreate, map[string]any{"permission_id": p.ID, "name": p.Name})
	httpx.OK(w, http.StatusCreated, "Permission created", p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermPermissionsUpdate) {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req permissionRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Update(r.Context(), id, req.Name, req.Description)
	if err != nil {
		h.fail(w, "update permission", err)
		return
	}
	h.emit(r, audit.ActionPermissionChange, map[string]any{"permission_id": id, "name": p.Name})
	httpx.OK(w, http.StatusOK, "Permission updated", p)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermPermissionsDelete) {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete permission", err)
		return
	}
	h.emit(r, audit.ActionPermissionChange, map[string]any{"permission_id": id, "deleted": true})
	httpx.OK(w, http.StatusOK, "Permission deleted", nil)
}

func (h *Handler) emit(r *http.Request, action audit.Action, details map[string]any) {
	actor, _ := h.guard.Subject(r.Context())
	h.audit.Emit(audit.RequestEvent(r, actor, action, "permission", details))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
