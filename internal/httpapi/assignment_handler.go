package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wisefido-allocator/internal/models"
	"wisefido-allocator/internal/repository"

	"go.uber.org/zap"
)

// AuditReader 分配审计记录查询（由 repository.AssignmentEventsRepository 实现）
type AuditReader interface {
	ListEvents(ctx context.Context, tenantID string, filters repository.AssignmentEventFilters) ([]models.AssignmentEvent, error)
}

// AssignmentHandler 分配审计 API（仅在配置了数据库时注册）
type AssignmentHandler struct {
	audit    AuditReader
	tenantID string
	logger   *zap.Logger
}

func NewAssignmentHandler(audit AuditReader, tenantID string, logger *zap.Logger) *AssignmentHandler {
	if tenantID == "" {
		tenantID = "default"
	}
	return &AssignmentHandler{audit: audit, tenantID: tenantID, logger: logger}
}

// ListAssignments GET /api/v1/assignments?resource_id=&patient_id=&kind=&since=&limit=
func (h *AssignmentHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filters repository.AssignmentEventFilters

	if v := strings.TrimSpace(q.Get("resource_id")); v != "" {
		filters.ResourceID = &v
	}
	if v := strings.TrimSpace(q.Get("patient_id")); v != "" {
		filters.PatientID = &v
	}
	if v := strings.TrimSpace(q.Get("kind")); v != "" {
		kind := models.AssignmentEventKind(v)
		switch kind {
		case models.EventAutoAssign, models.EventManualAssign, models.EventStatusChange:
		default:
			writeFail(w, http.StatusBadRequest, "invalid kind")
			return
		}
		filters.Kind = &kind
	}
	if v := strings.TrimSpace(q.Get("since")); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "invalid since: expected RFC3339")
			return
		}
		filters.Since = &since
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 || limit > 1000 {
			writeFail(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filters.Limit = limit
	}

	items, err := h.audit.ListEvents(r.Context(), h.tenantID, filters)
	if err != nil {
		h.logger.Error("Failed to list assignment events", zap.Error(err))
		writeFail(w, http.StatusInternalServerError, "internal error")
		return
	}
	if items == nil {
		items = []models.AssignmentEvent{}
	}
	writeOK(w, items)
}
