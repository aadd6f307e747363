package store

import (
	"errors"
	"fmt"
	"sync"

	"wisefido-allocator/internal/models"
)

var (
	ErrResourceNotFound     = errors.New("resource not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidStatus        = errors.New("invalid resource status")
	ErrReadOnly             = errors.New("read-only transaction")
)

// MemoryStore 内存数据仓库：患者和资源按 ID 存储，并保留插入顺序
// - 所有读写通过 View / Update 事务进行
// - Update 持有写锁执行整个回调，其他读者看不到半完成的分配过程
type MemoryStore struct {
	mu sync.RWMutex

	patients      map[string]*models.Patient
	patientOrder  []string
	resources     map[string]*models.Resource
	resourceOrder []string

	notifications    []models.Notification // 最新的在前
	maxNotifications int
}

// NewMemoryStore 创建内存仓库；maxNotifications <= 0 时默认保留 100 条通知
func NewMemoryStore(maxNotifications int) *MemoryStore {
	if maxNotifications <= 0 {
		maxNotifications = 100
	}
	return &MemoryStore{
		patients:         map[string]*models.Patient{},
		resources:        map[string]*models.Resource{},
		maxNotifications: maxNotifications,
	}
}

// Tx 仓库事务句柄，仅在 View / Update 回调内有效
type Tx struct {
	s        *MemoryStore
	writable bool
}

// View 以只读事务执行 fn
func (s *MemoryStore) View(fn func(tx *Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&Tx{s: s})
}

// Update 以读写事务执行 fn；回调期间独占仓库
func (s *MemoryStore) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Tx{s: s, writable: true})
}

// ---- 便捷方法（单次事务） ----

// Patients 按插入顺序返回全部患者副本
func (s *MemoryStore) Patients() []models.Patient {
	var out []models.Patient
	_ = s.View(func(tx *Tx) error {
		out = tx.Patients()
		return nil
	})
	return out
}

// Resources 按插入顺序返回全部资源副本
func (s *MemoryStore) Resources() []models.Resource {
	var out []models.Resource
	_ = s.View(func(tx *Tx) error {
		out = tx.Resources()
		return nil
	})
	return out
}

// SetResourceStatus 更新资源状态
func (s *MemoryStore) SetResourceStatus(resourceID string, status models.ResourceStatus, patientID string) error {
	return s.Update(func(tx *Tx) error {
		return tx.SetResourceStatus(resourceID, status, patientID)
	})
}

// Load 批量写入患者和资源（用于启动时加载种子数据）
func (s *MemoryStore) Load(patients []models.Patient, resources []models.Resource) error {
	return s.Update(func(tx *Tx) error {
		for _, p := range patients {
			if err := tx.UpsertPatient(p); err != nil {
				return err
			}
		}
		for _, r := range resources {
			if err := tx.UpsertResource(r); err != nil {
				return err
			}
		}
		return nil
	})
}

// ---- 读操作 ----

// Patients 按插入顺序返回全部患者副本
func (tx *Tx) Patients() []models.Patient {
	out := make([]models.Patient, 0, len(tx.s.patientOrder))
	for _, id := range tx.s.patientOrder {
		out = append(out, clonePatient(tx.s.patients[id]))
	}
	return out
}

// Resources 按插入顺序返回全部资源副本
func (tx *Tx) Resources() []models.Resource {
	out := make([]models.Resource, 0, len(tx.s.resourceOrder))
	for _, id := range tx.s.resourceOrder {
		out = append(out, cloneResource(tx.s.resources[id]))
	}
	return out
}

// Patient 按 ID 获取患者
func (tx *Tx) Patient(id string) (models.Patient, bool) {
	p, ok := tx.s.patients[id]
	if !ok {
		return models.Patient{}, false
	}
	return clonePatient(p), true
}

// Resource 按 ID 获取资源
func (tx *Tx) Resource(id string) (models.Resource, bool) {
	r, ok := tx.s.resources[id]
	if !ok {
		return models.Resource{}, false
	}
	return cloneResource(r), true
}

// AssignedPatients 当前被任意资源占用的患者 ID 集合
func (tx *Tx) AssignedPatients() map[string][]string {
	out := map[string][]string{}
	for _, id := range tx.s.resourceOrder {
		r := tx.s.resources[id]
		if r.Status == models.StatusInUse && r.AssignedTo != "" {
			out[r.AssignedTo] = append(out[r.AssignedTo], r.ID)
		}
	}
	return out
}

// Notifications 返回通知列表（最新在前）
func (tx *Tx) Notifications() []models.Notification {
	out := make([]models.Notification, len(tx.s.notifications))
	copy(out, tx.s.notifications)
	return out
}

// ---- 写操作 ----

// SetResourceStatus 更新资源状态和分配关系
// - in-use 必须带 patientID
// - 其他状态清除分配关系；available 同时清除预计释放时间
func (tx *Tx) SetResourceStatus(resourceID string, status models.ResourceStatus, patientID string) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	r, ok := tx.s.resources[resourceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, resourceID)
	}

	switch status {
	case models.StatusInUse:
		if patientID == "" {
			return fmt.Errorf("%w: in-use requires an assigned patient", ErrInvalidStatus)
		}
		r.AssignedTo = patientID
	case models.StatusAvailable:
		r.AssignedTo = ""
		r.EstimatedRelease = nil
	default:
		r.AssignedTo = ""
	}
	r.Status = status
	return nil
}

// UpsertPatient 新增或更新患者（保持原插入位置）
func (tx *Tx) UpsertPatient(p models.Patient) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if p.ID == "" {
		return fmt.Errorf("patient id is required")
	}
	if _, exists := tx.s.patients[p.ID]; !exists {
		tx.s.patientOrder = append(tx.s.patientOrder, p.ID)
	}
	cp := clonePatient(&p)
	tx.s.patients[p.ID] = &cp
	return nil
}

// UpsertResource 新增或更新资源（保持原插入位置）
func (tx *Tx) UpsertResource(r models.Resource) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if r.ID == "" {
		return fmt.Errorf("resource id is required")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("unknown resource type %q for %s", r.Type, r.ID)
	}
	if r.Status == "" {
		r.Status = models.StatusAvailable
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, r.Status)
	}
	// 维持不变量：只有 in-use 才有分配关系
	if r.Status == models.StatusInUse && r.AssignedTo == "" {
		return fmt.Errorf("%w: resource %s is in-use without assignment", ErrInvalidStatus, r.ID)
	}
	if r.Status != models.StatusInUse {
		r.AssignedTo = ""
	}
	if _, exists := tx.s.resources[r.ID]; !exists {
		tx.s.resourceOrder = append(tx.s.resourceOrder, r.ID)
	}
	cp := cloneResource(&r)
	tx.s.resources[r.ID] = &cp
	return nil
}

// RemovePatient 删除患者，并释放其占用的资源；返回被释放资源的副本（释放后的状态）
func (tx *Tx) RemovePatient(id string) ([]models.Resource, error) {
	if !tx.writable {
		return nil, ErrReadOnly
	}
	if _, ok := tx.s.patients[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, id)
	}
	delete(tx.s.patients, id)
	tx.s.patientOrder = removeID(tx.s.patientOrder, id)

	var released []models.Resource
	for _, rid := range tx.s.resourceOrder {
		r := tx.s.resources[rid]
		if r.AssignedTo == id {
			r.Status = models.StatusAvailable
			r.AssignedTo = ""
			r.EstimatedRelease = nil
			released = append(released, cloneResource(r))
		}
	}
	return released, nil
}

// AddNotification 追加通知（超过上限时丢弃最旧的）
func (tx *Tx) AddNotification(n models.Notification) error {
	if !tx.writable {
		return ErrReadOnly
	}
	tx.s.notifications = append([]models.Notification{n}, tx.s.notifications...)
	if len(tx.s.notifications) > tx.s.maxNotifications {
		tx.s.notifications = tx.s.notifications[:tx.s.maxNotifications]
	}
	return nil
}

// MarkNotificationRead 标记通知为已读
func (tx *Tx) MarkNotificationRead(id string) error {
	if !tx.writable {
		return ErrReadOnly
	}
	for i := range tx.s.notifications {
		if tx.s.notifications[i].ID == id {
			tx.s.notifications[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotificationNotFound, id)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func clonePatient(p *models.Patient) models.Patient {
	cp := *p
	if p.Vitals.HeartRate != nil {
		v := *p.Vitals.HeartRate
		cp.Vitals.HeartRate = &v
	}
	if p.Vitals.OxygenSaturation != nil {
		v := *p.Vitals.OxygenSaturation
		cp.Vitals.OxygenSaturation = &v
	}
	if p.Vitals.Temperature != nil {
		v := *p.Vitals.Temperature
		cp.Vitals.Temperature = &v
	}
	return cp
}

func cloneResource(r *models.Resource) models.Resource {
	cp := *r
	if r.EstimatedRelease != nil {
		t := *r.EstimatedRelease
		cp.EstimatedRelease = &t
	}
	return cp
}
