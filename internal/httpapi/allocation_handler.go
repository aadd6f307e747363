package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"wisefido-allocator/internal/allocator"
	"wisefido-allocator/internal/cache"
	"wisefido-allocator/internal/models"
	"wisefido-allocator/internal/report"
	"wisefido-allocator/internal/store"

	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

// BoardService 看板与分配操作（由 allocator.Allocator 实现）
type BoardService interface {
	Board(ctx context.Context) (*models.Board, error)
	Queue(ctx context.Context) ([]models.ScoredPatient, error)
	Resources(ctx context.Context, filter allocator.ResourceFilter) ([]models.Resource, error)
	Assign(ctx context.Context, resourceID, patientID string) (*models.Assignment, error)
	UpdateStatus(ctx context.Context, resourceID string, status models.ResourceStatus) (*models.Resource, error)
	Notifications(ctx context.Context, unreadOnly bool) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	Discharge(ctx context.Context, patientID string, status models.PatientStatus) ([]models.Resource, error)
}

// BoardSnapshot 看板快照缓存（由 cache.BoardCache 实现）
type BoardSnapshot interface {
	GetBoard(ctx context.Context) (*models.Board, error)
}

// PassRunner 手动触发重新分配（由 scheduler.Reallocator 实现）
type PassRunner interface {
	RunOnce(ctx context.Context, force bool) (*allocator.PassResult, error)
}

// AllocationHandler 急诊资源分配 API
type AllocationHandler struct {
	board    BoardService
	runner   PassRunner
	snapshot BoardSnapshot
	logger   *zap.Logger
}

func NewAllocationHandler(board BoardService, runner PassRunner, logger *zap.Logger) *AllocationHandler {
	return &AllocationHandler{board: board, runner: runner, logger: logger}
}

// SetBoardCache 设置看板缓存；GET /api/v1/board 优先读取缓存
func (h *AllocationHandler) SetBoardCache(snapshot BoardSnapshot) {
	h.snapshot = snapshot
}

// GetBoard GET /api/v1/board
// 缓存命中时直接返回快照，未命中或读取失败时实时生成
func (h *AllocationHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	if h.snapshot != nil {
		board, err := h.snapshot.GetBoard(r.Context())
		if err == nil {
			w.Header().Set("X-Board-Source", "cache")
			writeOK(w, board)
			return
		}
		if !errors.Is(err, cache.ErrBoardNotFound) {
			h.logger.Warn("Board cache read failed, building live board", zap.Error(err))
		}
	}

	board, err := h.board.Board(r.Context())
	if err != nil {
		h.fail(w, "get board", err)
		return
	}
	w.Header().Set("X-Board-Source", "live")
	writeOK(w, board)
}

// ListPatients GET /api/v1/patients
func (h *AllocationHandler) ListPatients(w http.ResponseWriter, r *http.Request) {
	queue, err := h.board.Queue(r.Context())
	if err != nil {
		h.fail(w, "list patients", err)
		return
	}
	if queue == nil {
		queue = []models.ScoredPatient{}
	}
	writeOK(w, queue)
}

// DischargePatient POST /api/v1/patients/{id}/discharge
func (h *AllocationHandler) DischargePatient(w http.ResponseWriter, r *http.Request, patientID string) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	released, err := h.board.Discharge(r.Context(), patientID, models.PatientStatus(strings.TrimSpace(payload.Status)))
	if err != nil {
		h.fail(w, "discharge patient", err)
		return
	}
	writeOK(w, map[string]any{
		"patient_id":         patientID,
		"released_resources": released,
	})
}

// ListResources GET /api/v1/resources?type=&status=&search=
func (h *AllocationHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := allocator.ResourceFilter{
		Type:   models.ResourceType(strings.TrimSpace(q.Get("type"))),
		Status: models.ResourceStatus(strings.TrimSpace(q.Get("status"))),
		Search: strings.TrimSpace(q.Get("search")),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		writeFail(w, http.StatusBadRequest, "invalid type")
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeFail(w, http.StatusBadRequest, "invalid status")
		return
	}

	resources, err := h.board.Resources(r.Context(), filter)
	if err != nil {
		h.fail(w, "list resources", err)
		return
	}
	writeOK(w, resources)
}

// ResourceSummary GET /api/v1/resources/summary
func (h *AllocationHandler) ResourceSummary(w http.ResponseWriter, r *http.Request) {
	board, err := h.board.Board(r.Context())
	if err != nil {
		h.fail(w, "resource summary", err)
		return
	}
	writeOK(w, map[string]any{
		"summary":     board.Summary,
		"utilization": board.Utilization,
	})
}

// AssignResource POST /api/v1/resources/{id}/assign
func (h *AllocationHandler) AssignResource(w http.ResponseWriter, r *http.Request, resourceID string) {
	var payload struct {
		PatientID string `json:"patient_id"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if strings.TrimSpace(payload.PatientID) == "" {
		writeFail(w, http.StatusBadRequest, "patient_id is required")
		return
	}

	assignment, err := h.board.Assign(r.Context(), resourceID, payload.PatientID)
	if err != nil {
		h.fail(w, "assign resource", err)
		return
	}
	writeOK(w, assignment)
}

// UpdateResourceStatus POST /api/v1/resources/{id}/status
func (h *AllocationHandler) UpdateResourceStatus(w http.ResponseWriter, r *http.Request, resourceID string) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &payload); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	status := models.ResourceStatus(strings.TrimSpace(payload.Status))
	if !status.Valid() {
		writeFail(w, http.StatusBadRequest, "invalid status")
		return
	}

	resource, err := h.board.UpdateStatus(r.Context(), resourceID, status)
	if err != nil {
		h.fail(w, "update resource status", err)
		return
	}
	writeOK(w, resource)
}

// RunAllocation POST /api/v1/allocations/run
func (h *AllocationHandler) RunAllocation(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.RunOnce(r.Context(), true)
	if err != nil {
		h.fail(w, "run allocation", err)
		return
	}
	writeOK(w, result)
}

// ListNotifications GET /api/v1/notifications?unread=true
func (h *AllocationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly := false
	if v := r.URL.Query().Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "invalid unread")
			return
		}
		unreadOnly = b
	}

	items, err := h.board.Notifications(r.Context(), unreadOnly)
	if err != nil {
		h.fail(w, "list notifications", err)
		return
	}
	writeOK(w, items)
}

// MarkNotificationRead POST /api/v1/notifications/{id}/read
func (h *AllocationHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.board.MarkNotificationRead(r.Context(), id); err != nil {
		h.fail(w, "mark notification read", err)
		return
	}
	writeOK(w, map[string]string{"id": id})
}

// ExportResources GET /api/v1/reports/resources.xlsx
func (h *AllocationHandler) ExportResources(w http.ResponseWriter, r *http.Request) {
	board, err := h.board.Board(r.Context())
	if err != nil {
		h.fail(w, "export resources", err)
		return
	}
	data, err := report.GenerateBoardReport(board)
	if err != nil {
		h.fail(w, "export resources", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="ed_resources.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// fail 业务错误 400，找不到 404，其余 500
func (h *AllocationHandler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, allocator.ErrInvalidOperation):
		writeFail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotificationNotFound),
		errors.Is(err, store.ErrResourceNotFound),
		errors.Is(err, store.ErrPatientNotFound):
		writeFail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeFail(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("Request failed", zap.String("op", op), zap.Error(err))
		writeFail(w, http.StatusInternalServerError, "internal error")
	}
}
