package pages

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/rbacadmin/internal/audit"
	"github.com/odyssey-erp/rbacadmin/internal/gate"
	"github.com/odyssey-erp/rbacadmin/internal/platform/httpx"
	"github.com/odyssey-erp/rbacadmin/internal/principal"
	"github.com/odyssey-erp/rbacadmin/internal/rbac"
	"github.com/odyssey-erp/rbacadmin/internal/shared"
)

// Handler exposes page administration and the dashboard page view.
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

// MountRoutes registers admin page routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

// MountDashboard registers the slug view. Access follows the page grants in
// the caller's session snapshot.
func (h *Handler) MountDashboard(r chi.Router) {
	r.With(gate.Protect(func(r *http.Request) gate.Requirement {
		return gate.Requirement{PageSlug: chi.URLParam(r, "slug")}
	})).Get("/pages/{slug}", h.view)
}

type pageRequest struct {
	Title      string `json:"title" validate:"required,max=100"`
	Slug       string `json:"slug" validate:"max=100"`
	StaticText string `json:"staticText" validate:"max=10000"`
}

type listResponse struct {
	Pages      []Page            `json:"pages"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermPagesRead) {
		return
	}
	search, page, limit := shared.ListQuery(r)
	filter := principal.ListFilter{Search: search, Page: page, Limit: limit}.Normalize()
	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list pages", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", listResponse{Pages: items, Pagination: shared.NewPagination(filter.Page, filter.Limit, total)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermPagesReadDetails) {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get page", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", page)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermPagesAdd) {
		return
	}
	var req pageRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.Create(r.Context(), Input(req))
	if err != nil {
		h.fail(w, "create page", err)
		return
	}
	h.emit(r, audit.ActionCreate, map[string]any{"page_id": page.ID, "slug": page.Slug})
	httpx.OK(w, http.StatusCreated, "Page created", page)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermPagesUpdate) {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req pageRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.Update(r.Context(), id, Input(req))
	if err != nil {
		h.fail(w, "update page", err)
		return
	}
	h.emit(r, audit.ActionUpdate, map[string]any{"page_id": id, "slug": page.Slug})
	httpx.OK(w, http.StatusOK, "Page updated", page)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if !h.guard.Allow(w, r, shared.PermPagesDelete) {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete page", err)
		return
	}
	h.emit(r, audit.ActionDelete, map[string]any{"page_id": id})
	httpx.OK(w, http.StatusOK, "Page deleted", nil)
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.BySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, "view page", err)
		return
	}
	httpx.OK(w, http.StatusOK, "", page)
}

func (h *Handler) emit(r *http.Request, action audit.Action, details map[string]any) {
	actor, _ := h.guard.Subject(r.Context())
	h.audit.Emit(audit.RequestEvent(r, actor, action, "page", details))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
