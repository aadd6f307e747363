package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"wisefido-allocator/internal/events"
	"wisefido-allocator/internal/models"

	"go.uber.org/zap"
)

// AssignmentEventsRepository 分配审计事件仓库（assignment_events 表，只追加）
type AssignmentEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAssignmentEventsRepository 创建分配事件仓库
func NewAssignmentEventsRepository(db *sql.DB, logger *zap.Logger) *AssignmentEventsRepository {
	return &AssignmentEventsRepository{
		db:     db,
		logger: logger,
	}
}

// AssignmentEventFilters 查询过滤条件（nil 表示不过滤）
type AssignmentEventFilters struct {
	ResourceID *string
	PatientID  *string
	Kind       *models.AssignmentEventKind
	Since      *time.Time // occurred_at >= Since
	Limit      int        // <= 0 时默认 100
}

// CreateEvent 写入一条分配事件
func (r *AssignmentEventsRepository) CreateEvent(ctx context.Context, event *models.AssignmentEvent) error {
	if event.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if event.EventID == "" {
		return fmt.Errorf("event_id is required")
	}

	query := `
		INSERT INTO assignment_events (
			event_id,
			tenant_id,
			kind,
			resource_id,
			resource_type,
			patient_id,
			status,
			score,
			occurred_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (event_id) DO NOTHING
	`

	var patientID sql.NullString
	if event.PatientID != "" {
		patientID = sql.NullString{String: event.PatientID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		query,
		event.EventID,
		event.TenantID,
		string(event.Kind),
		event.ResourceID,
		string(event.ResourceType),
		patientID,
		string(event.Status),
		event.Score,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert assignment event: %w", err)
	}

	r.logger.Debug("Assignment event recorded",
		zap.String("event_id", event.EventID),
		zap.String("kind", string(event.Kind)),
		zap.String("resource_id", event.ResourceID),
	)
	return nil
}

// ListEvents 按时间倒序查询分配事件
func (r *AssignmentEventsRepository) ListEvents(ctx context.Context, tenantID string, filters AssignmentEventFilters) ([]models.AssignmentEvent, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	conditions := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filters.ResourceID != nil {
		add("resource_id = $%d", *filters.ResourceID)
	}
	if filters.PatientID != nil {
		add("patient_id = $%d", *filters.PatientID)
	}
	if filters.Kind != nil {
		add("kind = $%d", string(*filters.Kind))
	}
	if filters.Since != nil {
		add("occurred_at >= $%d", *filters.Since)
	}
	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT
			event_id,
			tenant_id,
			kind,
			resource_id,
			resource_type,
			patient_id,
			status,
			score,
			occurred_at
		FROM assignment_events
		WHERE %s
		ORDER BY occurred_at DESC
		LIMIT $%d
	`, strings.Join(conditions, " AND "), len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignment events: %w", err)
	}
	defer rows.Close()

	var out []models.AssignmentEvent
	for rows.Next() {
		var ev models.AssignmentEvent
		var kind, resourceType, status string
		var patientID sql.NullString
		if err := rows.Scan(
			&ev.EventID,
			&ev.TenantID,
			&kind,
			&ev.ResourceID,
			&resourceType,
			&patientID,
			&status,
			&ev.Score,
			&ev.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan assignment event: %w", err)
		}
		ev.Kind = models.AssignmentEventKind(kind)
		ev.ResourceType = models.ResourceType(resourceType)
		ev.Status = models.ResourceStatus(status)
		if patientID.Valid {
			ev.PatientID = patientID.String
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignment events: %w", err)
	}
	return out, nil
}

// Name 实现 events.Sink
func (r *AssignmentEventsRepository) Name() string { return "postgres-audit" }

// Handle 只记录分配事件
func (r *AssignmentEventsRepository) Handle(ctx context.Context, ev events.Event) error {
	if ev.Assignment == nil {
		return nil
	}
	return r.CreateEvent(ctx, ev.Assignment)
}
