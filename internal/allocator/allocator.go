package allocator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"wisefido-allocator/internal/events"
	"wisefido-allocator/internal/models"
	"wisefido-allocator/internal/scorer"
	"wisefido-allocator/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidOperation 人工操作被拒绝（不会修改仓库状态）
var ErrInvalidOperation = errors.New("invalid operation")

var (
	ErrUnknownResource     = fmt.Errorf("%w: unknown resource", ErrInvalidOperation)
	ErrUnknownPatient      = fmt.Errorf("%w: unknown patient", ErrInvalidOperation)
	ErrResourceUnavailable = fmt.Errorf("%w: resource not available", ErrInvalidOperation)
	ErrInvalidTransition   = fmt.Errorf("%w: status transition not allowed", ErrInvalidOperation)
	ErrInvalidDischarge    = fmt.Errorf("%w: discharge status must be discharged or transferred", ErrInvalidOperation)
)

// DefaultUtilizationThreshold 资源占用率超过该值时触发重新分配
const DefaultUtilizationThreshold = 0.8

// Store 分配器使用的仓库接口
type Store interface {
	View(fn func(tx *store.Tx) error) error
	Update(fn func(tx *store.Tx) error) error
}

// Emitter 事件发送接口（必须非阻塞）
type Emitter interface {
	Emit(ev events.Event) bool
}

// Recorder 指标记录接口
type Recorder interface {
	ObservePass(duration time.Duration, assigned, skipped int)
	ObserveAssignment(kind models.AssignmentEventKind, resourceType models.ResourceType)
	ObserveTrigger(utilization float64, unassignedCritical int)
}

// Allocator 资源分配器
type Allocator struct {
	store     Store
	scorer    *scorer.Scorer
	emitter   Emitter
	metrics   Recorder
	logger    *zap.Logger
	tenantID  string
	threshold float64
	now       func() time.Time

	// 上一次发出的告警状态，状态不变时不重复通知
	alertMu   sync.Mutex
	lastAlert string
}

// Option 分配器选项
type Option func(*Allocator)

// WithEmitter 设置事件发送器
func WithEmitter(e Emitter) Option { return func(a *Allocator) { a.emitter = e } }

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option { return func(a *Allocator) { a.metrics = r } }

// WithTenant 设置租户 ID（写入审计事件）
func WithTenant(tenantID string) Option { return func(a *Allocator) { a.tenantID = tenantID } }

// WithClock 设置时钟（测试使用）
func WithClock(now func() time.Time) Option { return func(a *Allocator) { a.now = now } }

// WithThreshold 设置占用率阈值，取值 (0,1]
func WithThreshold(threshold float64) Option {
	return func(a *Allocator) {
		if threshold > 0 && threshold <= 1 {
			a.threshold = threshold
		}
	}
}

// New 创建分配器
func New(st Store, sc *scorer.Scorer, logger *zap.Logger, opts ...Option) *Allocator {
	a := &Allocator{
		store:     st,
		scorer:    sc,
		emitter:   nopEmitter{},
		metrics:   nopRecorder{},
		logger:    logger,
		threshold: DefaultUtilizationThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// PassResult 一次分配过程的结果
type PassResult struct {
	Assignments        []models.Assignment `json:"assignments"`
	Skipped            []string            `json:"skipped,omitempty"`   // 没有兼容候选患者的可用资源
	Available          int                 `json:"available"`           // 本次开始时可用资源数
	Candidates         int                 `json:"candidates"`          // 本次开始时未分配患者数
	Utilization        float64             `json:"utilization"`         // 分配完成后的占用率
	UnassignedCritical int                 `json:"unassigned_critical"` // 分配完成后仍未分配的危重患者数
	Duration           time.Duration       `json:"duration_ns"`
}

// Trigger 重新分配触发条件的评估结果
type Trigger struct {
	Utilization        float64
	UnassignedCritical int
	Fire               bool
}

// Compatible 资源类型与患者是否匹配
func Compatible(resourceType models.ResourceType, p models.Patient) bool {
	switch resourceType {
	case models.ResourceAmbulance:
		return strings.Contains(p.ChiefComplaint, "Trauma") || p.Triage == models.TriageCritical
	case models.ResourceVentilator:
		spo2 := p.Vitals.OxygenSaturation
		return strings.Contains(p.ChiefComplaint, "Respiratory") || (spo2 != nil && *spo2 < 90)
	}
	return true
}

// Run 执行一次完整分配过程
// 整个过程在一个写事务内完成；事件在事务结束后以非阻塞方式发出
func (a *Allocator) Run(ctx context.Context) (*PassResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := a.now()
	result := &PassResult{}
	var notes []models.Notification

	err := a.store.Update(func(tx *store.Tx) error {
		pool := a.scorer.Rank(unassigned(tx))
		result.Candidates = len(pool)

		for _, r := range tx.Resources() {
			if r.Status != models.StatusAvailable {
				continue
			}
			result.Available++

			idx := slices.IndexFunc(pool, func(c models.ScoredPatient) bool {
				return Compatible(r.Type, c.Patient)
			})
			if idx < 0 {
				result.Skipped = append(result.Skipped, r.ID)
				continue
			}

			chosen := pool[idx]
			if err := tx.SetResourceStatus(r.ID, models.StatusInUse, chosen.ID); err != nil {
				// 单个资源失败不影响其他资源
				a.logger.Warn("Failed to assign resource",
					zap.String("resource_id", r.ID),
					zap.String("patient_id", chosen.ID),
					zap.Error(err),
				)
				continue
			}
			pool = slices.Delete(pool, idx, idx+1)

			result.Assignments = append(result.Assignments, models.Assignment{
				ResourceID:   r.ID,
				ResourceType: r.Type,
				PatientID:    chosen.ID,
				Score:        chosen.Score,
				AssignedAt:   start,
			})
		}

		trig := a.evaluate(tx)
		result.Utilization = trig.Utilization
		result.UnassignedCritical = trig.UnassignedCritical

		notes = a.alerts(tx, trig, start)
		for _, n := range notes {
			if err := tx.AddNotification(n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("allocation pass failed: %w", err)
	}

	result.Duration = a.now().Sub(start)
	a.metrics.ObservePass(result.Duration, len(result.Assignments), len(result.Skipped))
	a.metrics.ObserveTrigger(result.Utilization, result.UnassignedCritical)

	for _, asg := range result.Assignments {
		a.metrics.ObserveAssignment(models.EventAutoAssign, asg.ResourceType)
		a.emit(events.Event{Assignment: a.assignmentEvent(models.EventAutoAssign, asg.ResourceID, asg.ResourceType, asg.PatientID, models.StatusInUse, asg.Score)})
	}
	for i := range notes {
		a.emit(events.Event{Notification: &notes[i]})
	}
	a.publishBoard()

	a.logger.Info("Allocation pass completed",
		zap.Int("available", result.Available),
		zap.Int("candidates", result.Candidates),
		zap.Int("assigned", len(result.Assignments)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Float64("utilization", result.Utilization),
		zap.Int("unassigned_critical", result.UnassignedCritical),
	)

	return result, nil
}

// NeedsReallocation 评估是否需要重新分配：
// 占用率超过阈值，或有危重患者尚未分配资源
func (a *Allocator) NeedsReallocation(ctx context.Context) (Trigger, error) {
	if err := ctx.Err(); err != nil {
		return Trigger{}, err
	}
	var trig Trigger
	err := a.store.View(func(tx *store.Tx) error {
		trig = a.evaluate(tx)
		return nil
	})
	if err != nil {
		return Trigger{}, err
	}
	a.metrics.ObserveTrigger(trig.Utilization, trig.UnassignedCritical)
	return trig, nil
}

// Assign 人工分配：跳过兼容性检查，仅校验资源可用和 ID 存在
func (a *Allocator) Assign(ctx context.Context, resourceID, patientID string) (*models.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var asg *models.Assignment
	err := a.store.Update(func(tx *store.Tx) error {
		r, ok := tx.Resource(resourceID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownResource, resourceID)
		}
		p, ok := tx.Patient(patientID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPatient, patientID)
		}
		if r.Status != models.StatusAvailable {
			return fmt.Errorf("%w: %s is %s", ErrResourceUnavailable, resourceID, r.Status)
		}
		if err := tx.SetResourceStatus(resourceID, models.StatusInUse, patientID); err != nil {
			return err
		}

		now := a.now()
		asg = &models.Assignment{
			ResourceID:   r.ID,
			ResourceType: r.Type,
			PatientID:    p.ID,
			Score:        a.scorer.ScoreAt(p, now),
			Manual:       true,
			AssignedAt:   now,
		}
		return nil
	})
	if err != nil {
		a.logger.Warn("Manual assignment rejected",
			zap.String("resource_id", resourceID),
			zap.String("patient_id", patientID),
			zap.Error(err),
		)
		return nil, err
	}

	a.metrics.ObserveAssignment(models.EventManualAssign, asg.ResourceType)
	a.emit(events.Event{Assignment: a.assignmentEvent(models.EventManualAssign, asg.ResourceID, asg.ResourceType, asg.PatientID, models.StatusInUse, asg.Score)})
	a.publishBoard()

	a.logger.Info("Manual assignment applied",
		zap.String("resource_id", asg.ResourceID),
		zap.String("patient_id", asg.PatientID),
		zap.Float64("score", asg.Score),
	)
	return asg, nil
}

// 允许的人工状态变更（in-use 只能通过 Assign 进入）
var transitions = map[models.ResourceStatus][]models.ResourceStatus{
	models.StatusInUse:       {models.StatusAvailable},
	models.StatusAvailable:   {models.StatusMaintenance, models.StatusReserved},
	models.StatusMaintenance: {models.StatusAvailable},
	models.StatusReserved:    {models.StatusAvailable},
}

// UpdateStatus 人工变更资源状态（释放、维护、预留）
func (a *Allocator) UpdateStatus(ctx context.Context, resourceID string, status models.ResourceStatus) (*models.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		updated  models.Resource
		released string
	)
	err := a.store.Update(func(tx *store.Tx) error {
		r, ok := tx.Resource(resourceID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownResource, resourceID)
		}
		if !slices.Contains(transitions[r.Status], status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, status)
		}
		released = r.AssignedTo
		if err := tx.SetResourceStatus(resourceID, status, ""); err != nil {
			return err
		}
		updated, _ = tx.Resource(resourceID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.metrics.ObserveAssignment(models.EventStatusChange, updated.Type)
	a.emit(events.Event{Assignment: a.assignmentEvent(models.EventStatusChange, updated.ID, updated.Type, released, status, 0)})
	a.publishBoard()

	a.logger.Info("Resource status updated",
		zap.String("resource_id", resourceID),
		zap.String("status", string(status)),
		zap.String("released_patient_id", released),
	)
	return &updated, nil
}

// Discharge 患者出院或转科：从急诊看板移除，并释放其占用的全部资源
func (a *Allocator) Discharge(ctx context.Context, patientID string, status models.PatientStatus) ([]models.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if status != models.PatientDischarged && status != models.PatientTransferred {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidDischarge, status)
	}

	var released []models.Resource
	err := a.store.Update(func(tx *store.Tx) error {
		if _, ok := tx.Patient(patientID); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPatient, patientID)
		}
		var err error
		released, err = tx.RemovePatient(patientID)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, r := range released {
		a.metrics.ObserveAssignment(models.EventStatusChange, r.Type)
		a.emit(events.Event{Assignment: a.assignmentEvent(models.EventStatusChange, r.ID, r.Type, patientID, models.StatusAvailable, 0)})
	}
	a.publishBoard()

	a.logger.Info("Patient discharged",
		zap.String("patient_id", patientID),
		zap.String("status", string(status)),
		zap.Int("released_resources", len(released)),
	)
	if released == nil {
		released = []models.Resource{}
	}
	return released, nil
}

// evaluate 计算占用率和未分配危重患者数（需在事务内调用）
func (a *Allocator) evaluate(tx *store.Tx) Trigger {
	resources := tx.Resources()
	inUse := 0
	for _, r := range resources {
		if r.Status == models.StatusInUse {
			inUse++
		}
	}

	var trig Trigger
	if len(resources) > 0 {
		trig.Utilization = float64(inUse) / float64(len(resources))
	}
	for _, p := range unassigned(tx) {
		if p.Triage == models.TriageCritical {
			trig.UnassignedCritical++
		}
	}
	trig.Fire = trig.Utilization > a.threshold || trig.UnassignedCritical > 0
	return trig
}

// unassigned 没有任何资源分配给他的在院患者（按仓库顺序）
func unassigned(tx *store.Tx) []models.Patient {
	assigned := tx.AssignedPatients()
	var out []models.Patient
	for _, p := range tx.Patients() {
		if !p.Status.Active() {
			continue
		}
		if _, ok := assigned[p.ID]; ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

// alerts 根据分配后的状态生成通知；状态未变化时不重复通知
func (a *Allocator) alerts(tx *store.Tx, trig Trigger, now time.Time) []models.Notification {
	var critical []string
	for _, p := range unassigned(tx) {
		if p.Triage == models.TriageCritical {
			critical = append(critical, p.ID)
		}
	}
	overloaded := trig.Utilization > a.threshold

	key := fmt.Sprintf("%s|%t", strings.Join(critical, ","), overloaded)
	a.alertMu.Lock()
	changed := key != a.lastAlert
	a.lastAlert = key
	a.alertMu.Unlock()
	if !changed {
		return nil
	}

	var notes []models.Notification
	for _, id := range critical {
		notes = append(notes, models.Notification{
			ID:          uuid.NewString(),
			Type:        models.NotificationAlert,
			Message:     fmt.Sprintf("Critical patient %s has no compatible resource available. Immediate attention required.", id),
			Timestamp:   now,
			RelatedType: "patient",
			RelatedID:   id,
		})
	}
	if overloaded {
		notes = append(notes, models.Notification{
			ID:        uuid.NewString(),
			Type:      models.NotificationWarning,
			Message:   fmt.Sprintf("Resource utilization at %.0f%%, above the %.0f%% threshold.", trig.Utilization*100, a.threshold*100),
			Timestamp: now,
		})
	}
	return notes
}

func (a *Allocator) assignmentEvent(kind models.AssignmentEventKind, resourceID string, rt models.ResourceType, patientID string, status models.ResourceStatus, score float64) *models.AssignmentEvent {
	return &models.AssignmentEvent{
		EventID:      uuid.NewString(),
		TenantID:     a.tenantID,
		Kind:         kind,
		ResourceID:   resourceID,
		ResourceType: rt,
		PatientID:    patientID,
		Status:       status,
		Score:        score,
		OccurredAt:   a.now(),
	}
}

func (a *Allocator) emit(ev events.Event) {
	if !a.emitter.Emit(ev) {
		a.logger.Debug("Event not delivered to dispatcher")
	}
}

func (a *Allocator) publishBoard() {
	board, err := a.Board(context.Background())
	if err != nil {
		a.logger.Warn("Failed to build board snapshot", zap.Error(err))
		return
	}
	a.emit(events.Event{Board: board})
}

type nopEmitter struct{}

func (nopEmitter) Emit(events.Event) bool { return true }

type nopRecorder struct{}

func (nopRecorder) ObservePass(time.Duration, int, int) {}
func (nopRecorder) ObserveAssignment(models.AssignmentEventKind, models.ResourceType) {}
func (nopRecorder) ObserveTrigger(float64, int) {}
