package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-allocator/internal/events"
	"wisefido-allocator/internal/models"

	"go.uber.org/zap"
)

// BoardRepository 急诊患者和资源表（ed_patients / ed_resources）
// 用于启动时加载仓库，以及把分配结果回写到数据库
type BoardRepository struct {
	db       *sql.DB
	tenantID string
	logger   *zap.Logger
}

// NewBoardRepository 创建看板仓库
func NewBoardRepository(db *sql.DB, tenantID string, logger *zap.Logger) *BoardRepository {
	return &BoardRepository{
		db:       db,
		tenantID: tenantID,
		logger:   logger,
	}
}

// LoadPatients 加载在院患者（按到达时间）
func (r *BoardRepository) LoadPatients(ctx context.Context) ([]models.Patient, error) {
	query := `
		SELECT
			patient_id,
			name,
			age,
			triage_level,
			status,
			heart_rate,
			oxygen_saturation,
			temperature,
			chief_complaint,
			location,
			arrival_time
		FROM ed_patients
		WHERE tenant_id = $1
		  AND status NOT IN ('discharged', 'transferred')
		ORDER BY arrival_time, patient_id
	`

	rows, err := r.db.QueryContext(ctx, query, r.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	var patients []models.Patient
	for rows.Next() {
		var p models.Patient
		var triage, status string
		var heartRate, spo2 sql.NullInt64
		var temp sql.NullFloat64
		var complaint, location sql.NullString

		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Age,
			&triage,
			&status,
			&heartRate,
			&spo2,
			&temp,
			&complaint,
			&location,
			&p.ArrivalTime,
		); err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}

		p.Triage = models.TriageLevel(triage)
		p.Status = models.PatientStatus(status)
		if heartRate.Valid {
			v := int(heartRate.Int64)
			p.Vitals.HeartRate = &v
		}
		if spo2.Valid {
			v := int(spo2.Int64)
			p.Vitals.OxygenSaturation = &v
		}
		if temp.Valid {
			v := temp.Float64
			p.Vitals.Temperature = &v
		}
		p.ChiefComplaint = complaint.String
		p.Location = location.String
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patients: %w", err)
	}
	return patients, nil
}

// LoadResources 加载全部资源（按 resource_id）
func (r *BoardRepository) LoadResources(ctx context.Context) ([]models.Resource, error) {
	query := `
		SELECT
			resource_id,
			name,
			resource_type,
			status,
			location,
			assigned_to,
			estimated_release
		FROM ed_resources
		WHERE tenant_id = $1
		ORDER BY resource_id
	`

	rows, err := r.db.QueryContext(ctx, query, r.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	var resources []models.Resource
	for rows.Next() {
		var res models.Resource
		var resourceType, status string
		var location, assignedTo sql.NullString
		var release sql.NullTime

		if err := rows.Scan(
			&res.ID,
			&res.Name,
			&resourceType,
			&status,
			&location,
			&assignedTo,
			&release,
		); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}

		res.Type = models.ResourceType(resourceType)
		res.Status = models.ResourceStatus(status)
		res.Location = location.String
		// 只有 in-use 才保留分配关系
		if res.Status == models.StatusInUse {
			res.AssignedTo = assignedTo.String
		}
		if release.Valid {
			t := release.Time
			res.EstimatedRelease = &t
		}
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resources: %w", err)
	}
	return resources, nil
}

// SaveResourceStatus 回写资源状态；非 in-use 时清空分配，available 时清空预计释放时间
func (r *BoardRepository) SaveResourceStatus(ctx context.Context, resourceID string, status models.ResourceStatus, patientID string) error {
	query := `
		UPDATE ed_resources
		SET status = $3,
		    assigned_to = $4,
		    estimated_release = CASE WHEN $3 = 'available' THEN NULL ELSE estimated_release END,
		    updated_at = NOW()
		WHERE tenant_id = $1
		  AND resource_id = $2
	`

	var assignedTo sql.NullString
	if status == models.StatusInUse && patientID != "" {
		assignedTo = sql.NullString{String: patientID, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query, r.tenantID, resourceID, string(status), assignedTo)
	if err != nil {
		return fmt.Errorf("failed to update resource status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		r.logger.Warn("Resource not found when saving status",
			zap.String("resource_id", resourceID),
		)
	}
	return nil
}

// Name 实现 events.Sink
func (r *BoardRepository) Name() string { return "postgres-board" }

// Handle 把分配和状态变更回写到 ed_resources
func (r *BoardRepository) Handle(ctx context.Context, ev events.Event) error {
	if ev.Assignment == nil {
		return nil
	}
	a := ev.Assignment
	patientID := ""
	if a.Status == models.StatusInUse {
		patientID = a.PatientID
	}
	return r.SaveResourceStatus(ctx, a.ResourceID, a.Status, patientID)
}
