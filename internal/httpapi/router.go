package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 /metrics）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterHealthRoutes 健康检查
func (r *Router) RegisterHealthRoutes() {
	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		writeOK(w, map[string]string{"status": "ok"})
	})
}

// RegisterAllocationRoutes 注册急诊分配相关路由
func (r *Router) RegisterAllocationRoutes(h *AllocationHandler) {
	r.Handle("/api/v1/board", method(http.MethodGet, h.GetBoard))
	r.Handle("/api/v1/patients", method(http.MethodGet, h.ListPatients))
	r.Handle("/api/v1/resources", method(http.MethodGet, h.ListResources))
	r.Handle("/api/v1/resources/summary", method(http.MethodGet, h.ResourceSummary))
	r.Handle("/api/v1/allocations/run", method(http.MethodPost, h.RunAllocation))
	r.Handle("/api/v1/notifications", method(http.MethodGet, h.ListNotifications))
	r.Handle("/api/v1/reports/resources.xlsx", method(http.MethodGet, h.ExportResources))

	// /api/v1/patients/{id}/discharge
	r.Handle("/api/v1/patients/", func(w http.ResponseWriter, req *http.Request) {
		id, action, ok := splitAction(req.URL.Path, "/api/v1/patients/")
		if !ok || action != "discharge" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.DischargePatient(w, req, id)
	})

	// /api/v1/resources/{id}/assign, /api/v1/resources/{id}/status
	r.Handle("/api/v1/resources/", func(w http.ResponseWriter, req *http.Request) {
		id, action, ok := splitAction(req.URL.Path, "/api/v1/resources/")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		switch action {
		case "assign":
			h.AssignResource(w, req, id)
		case "status":
			h.UpdateResourceStatus(w, req, id)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	// /api/v1/notifications/{id}/read
	r.Handle("/api/v1/notifications/", func(w http.ResponseWriter, req *http.Request) {
		id, action, ok := splitAction(req.URL.Path, "/api/v1/notifications/")
		if !ok || action != "read" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.MarkNotificationRead(w, req, id)
	})
}

// RegisterAssignmentRoutes 分配审计查询
func (r *Router) RegisterAssignmentRoutes(h *AssignmentHandler) {
	r.Handle("/api/v1/assignments", method(http.MethodGet, h.ListAssignments))
}

func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != m {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// splitAction 解析 {prefix}{id}/{action}
func splitAction(path, prefix string) (id, action string, ok bool) {
	parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
