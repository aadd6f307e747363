package models

import (
	"time"
)

// ResourceType 资源类型
type ResourceType string

const (
	ResourceBed        ResourceType = "bed"
	ResourceVentilator ResourceType = "ventilator"
	ResourceMonitor    ResourceType = "monitor"
	ResourceAmbulance  ResourceType = "ambulance"
	ResourceStaff      ResourceType = "staff"
	ResourceBlood      ResourceType = "blood"
	ResourceMedication ResourceType = "medication"
)

// ResourceTypes 固定的资源类型列表（用于汇总展示，保持顺序）
var ResourceTypes = []ResourceType{
	ResourceBed,
	ResourceVentilator,
	ResourceMonitor,
	ResourceAmbulance,
	ResourceStaff,
	ResourceBlood,
	ResourceMedication,
}

// Valid 是否为已知资源类型
func (t ResourceType) Valid() bool {
	for _, v := range ResourceTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ResourceStatus 资源状态
type ResourceStatus string

const (
	StatusAvailable   ResourceStatus = "available"
	StatusInUse       ResourceStatus = "in-use"
	StatusMaintenance ResourceStatus = "maintenance"
	StatusReserved    ResourceStatus = "reserved"
)

// Valid 是否为已知资源状态
func (s ResourceStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusInUse, StatusMaintenance, StatusReserved:
		return true
	}
	return false
}

// Resource 可分配资源（床位、呼吸机、监护仪、救护车、人员、血液、药品）
// 不变量：AssignedTo 非空 当且仅当 Status == in-use
type Resource struct {
	ID               string         `json:"id" db:"resource_id"`
	Name             string         `json:"name" db:"name"`
	Type             ResourceType   `json:"type" db:"resource_type"`
	Status           ResourceStatus `json:"status" db:"status"`
	Location         string         `json:"location,omitempty" db:"location"`
	AssignedTo       string         `json:"assigned_to,omitempty" db:"assigned_to"`
	EstimatedRelease *time.Time     `json:"estimated_release,omitempty" db:"estimated_release"`
}

// Assignment 一次分配结果（资源 → 患者）
type Assignment struct {
	ResourceID   string       `json:"resource_id"`
	ResourceType ResourceType `json:"resource_type"`
	PatientID    string       `json:"patient_id"`
	Score        float64      `json:"score"`
	Manual       bool         `json:"manual"`
	AssignedAt   time.Time    `json:"assigned_at"`
}
