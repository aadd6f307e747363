package models

import (
	"time"
)

// AssignmentEventKind 分配事件类型
type AssignmentEventKind string

const (
	EventAutoAssign   AssignmentEventKind = "auto"
	EventManualAssign AssignmentEventKind = "manual"
	EventStatusChange AssignmentEventKind = "status"
)

// AssignmentEvent 分配审计事件（对应 assignment_events 表）
type AssignmentEvent struct {
	EventID      string              `json:"event_id" db:"event_id"`
	TenantID     string              `json:"tenant_id" db:"tenant_id"`
	Kind         AssignmentEventKind `json:"kind" db:"kind"`
	ResourceID   string              `json:"resource_id" db:"resource_id"`
	ResourceType ResourceType        `json:"resource_type" db:"resource_type"`
	PatientID    string              `json:"patient_id,omitempty" db:"patient_id"`
	Status       ResourceStatus      `json:"status" db:"status"`
	Score        float64             `json:"score" db:"score"`
	OccurredAt   time.Time           `json:"occurred_at" db:"occurred_at"`
}

// NotificationType 通知类型
type NotificationType string

const (
	NotificationAlert   NotificationType = "alert"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

// Notification 运营通知（推送给值班人员）
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	Message     string           `json:"message"`
	Timestamp   time.Time        `json:"timestamp"`
	Read        bool             `json:"read"`
	RelatedType string           `json:"related_type,omitempty"` // patient, resource
	RelatedID   string           `json:"related_id,omitempty"`
}

// ScoredPatient 带优先级评分的患者（用于排序和展示）
type ScoredPatient struct {
	Patient
	Score     float64 `json:"score"`
	RiskLevel string  `json:"risk_level"`
	// 当前分配到该患者的资源 ID
	Resources []string `json:"resources,omitempty"`
}

// TypeSummary 某一资源类型的可用性汇总
type TypeSummary struct {
	Type             ResourceType `json:"type"`
	Total            int          `json:"total"`
	Available        int          `json:"available"`
	InUse            int          `json:"in_use"`
	Maintenance      int          `json:"maintenance"`
	Reserved         int          `json:"reserved"`
	AvailablePercent int          `json:"available_percent"`
	Level            string       `json:"level"` // critical, low, normal
}

// Board 资源看板快照（写入 Redis 供前端读取）
type Board struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Resources   []Resource      `json:"resources"`
	Queue       []ScoredPatient `json:"queue"`
	Summary     []TypeSummary   `json:"summary"`
	Utilization float64         `json:"utilization"`
}
