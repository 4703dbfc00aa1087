package jobs

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/rbacadmin/internal/platform/httpx"
)

// QueueInspector is the subset of asynq.Inspector used by the health probe.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes queue depth for operators.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs the jobs HTTP handler. inspector may be nil, in
// which case queues are reported empty.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Active  int    `json:"active"`
	Retry   int    `json:"retry"`
}

type healthResponse struct {
	Queues []queueHealth `json:"queues"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(QueueWeights))
	for name := range QueueWeights {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Queues: make([]queueHealth, 0, len(names))}
	for _, name := range names {
		q := queueHealth{Queue: name}
		if h.inspector != nil {
			info, err := h.inspector.GetQueueInfo(name)
			if err != nil {
				h.logger.Warn("jobs health", slog.String("queue", name), slog.Any("error", err))
				httpx.Fail(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
				return
			}
			if info != nil {
				q.Pending, q.Active, q.Retry = info.Pending, info.Active, info.Retry
			}
		}
		resp.Queues = append(resp.Queues, q)
	}
	httpx.JSON(w, http.StatusOK, resp)
}
