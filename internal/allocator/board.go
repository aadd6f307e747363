package allocator

import (
	"context"
	"math"
	"strings"

	"wisefido-allocator/internal/models"
	"wisefido-allocator/internal/store"
)

// 可用率分档（看板颜色）
const (
	LevelCritical = "critical" // <= 20%
	LevelLow      = "low"      // <= 50%
	LevelNormal   = "normal"
)

// ResourceFilter 资源列表过滤条件（空值表示不过滤）
type ResourceFilter struct {
	Type   models.ResourceType
	Status models.ResourceStatus
	Search string // 名称或 ID 子串，大小写不敏感
}

// Match 资源是否满足过滤条件
func (f ResourceFilter) Match(r models.Resource) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(r.Name), q) && !strings.Contains(strings.ToLower(r.ID), q) {
			return false
		}
	}
	return true
}

// Board 生成当前看板快照：资源、评分排序的患者队列、按类型汇总
func (a *Allocator) Board(ctx context.Context) (*models.Board, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	board := &models.Board{GeneratedAt: a.now()}
	err := a.store.View(func(tx *store.Tx) error {
		board.Resources = tx.Resources()
		board.Queue = a.queue(tx)
		board.Summary = Summarize(board.Resources)
		board.Utilization = a.evaluate(tx).Utilization
		return nil
	})
	if err != nil {
		return nil, err
	}
	return board, nil
}

// Queue 在院患者按优先级排序，附带当前分配到的资源
func (a *Allocator) Queue(ctx context.Context) ([]models.ScoredPatient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var queue []models.ScoredPatient
	err := a.store.View(func(tx *store.Tx) error {
		queue = a.queue(tx)
		return nil
	})
	return queue, err
}

// Resources 按过滤条件返回资源列表（仓库顺序）
func (a *Allocator) Resources(ctx context.Context, filter ResourceFilter) ([]models.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []models.Resource{}
	err := a.store.View(func(tx *store.Tx) error {
		for _, r := range tx.Resources() {
			if filter.Match(r) {
				out = append(out, r)
			}
		}
		return nil
	})
	return out, err
}

func (a *Allocator) queue(tx *store.Tx) []models.ScoredPatient {
	var active []models.Patient
	for _, p := range tx.Patients() {
		if p.Status.Active() {
			active = append(active, p)
		}
	}
	assigned := tx.AssignedPatients()
	queue := a.scorer.Rank(active)
	for i := range queue {
		queue[i].Resources = assigned[queue[i].ID]
	}
	return queue
}

// Summarize 按固定类型顺序汇总资源可用性；没有资源的类型不输出
func Summarize(resources []models.Resource) []models.TypeSummary {
	byType := map[models.ResourceType]*models.TypeSummary{}
	for _, r := range resources {
		s, ok := byType[r.Type]
		if !ok {
			s = &models.TypeSummary{Type: r.Type}
			byType[r.Type] = s
		}
		s.Total++
		switch r.Status {
		case models.StatusAvailable:
			s.Available++
		case models.StatusInUse:
			s.InUse++
		case models.StatusMaintenance:
			s.Maintenance++
		case models.StatusReserved:
			s.Reserved++
		}
	}

	out := make([]models.TypeSummary, 0, len(byType))
	for _, t := range models.ResourceTypes {
		s, ok := byType[t]
		if !ok {
			continue
		}
		s.AvailablePercent = int(math.Round(float64(s.Available) * 100 / float64(s.Total)))
		s.Level = availabilityLevel(s.AvailablePercent)
		out = append(out, *s)
	}
	return out
}

func availabilityLevel(percent int) string {
	switch {
	case percent <= 20:
		return LevelCritical
	case percent <= 50:
		return LevelLow
	}
	return LevelNormal
}
