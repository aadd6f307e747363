package models

import (
	"time"
)

// TriageLevel 分诊等级（critical > urgent > non-urgent）
type TriageLevel string

const (
	TriageCritical  TriageLevel = "critical"
	TriageUrgent    TriageLevel = "urgent"
	TriageNonUrgent TriageLevel = "non-urgent"
)

// Rank 返回分诊等级的排序值，数值越大越紧急；未知等级返回 0
func (t TriageLevel) Rank() int {
	switch t {
	case TriageCritical:
		return 3
	case TriageUrgent:
		return 2
	case TriageNonUrgent:
		return 1
	default:
		return 0
	}
}

// Valid 是否为已知分诊等级
func (t TriageLevel) Valid() bool {
	return t.Rank() > 0
}

// PatientStatus 患者状态
type PatientStatus string

const (
	PatientWaiting     PatientStatus = "waiting"
	PatientInTreatment PatientStatus = "in-treatment"
	PatientDischarged  PatientStatus = "discharged"
	PatientTransferred PatientStatus = "transferred"
)

// Active 患者是否仍在急诊（空状态视为 waiting）
func (s PatientStatus) Active() bool {
	return s != PatientDischarged && s != PatientTransferred
}

// VitalSigns 生命体征（nil 表示未测量）
type VitalSigns struct {
	HeartRate        *int     `json:"heart_rate,omitempty"`        // bpm
	OxygenSaturation *int     `json:"oxygen_saturation,omitempty"` // %
	Temperature      *float64 `json:"temperature,omitempty"`       // °C
}

// Patient 急诊患者（由外部 store 持有）
type Patient struct {
	ID             string        `json:"id" db:"patient_id"`
	Name           string        `json:"name" db:"name"`
	Age            int           `json:"age" db:"age"`
	Triage         TriageLevel   `json:"triage_level" db:"triage_level"`
	Status         PatientStatus `json:"status" db:"status"`
	Vitals         VitalSigns    `json:"vital_signs"`
	ChiefComplaint string        `json:"chief_complaint" db:"chief_complaint"`
	Location       string        `json:"location,omitempty" db:"location"`
	ArrivalTime    time.Time     `json:"arrival_time" db:"arrival_time"`
}
