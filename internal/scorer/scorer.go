package scorer

import (
	"sort"
	"strings"
	"time"

	"wisefido-allocator/internal/models"
)

// 各项加分（累加制，各项互不影响）
const (
	pointsCritical  = 50
	pointsUrgent    = 30
	pointsNonUrgent = 10

	pointsElderly = 20 // age > 60
	pointsChild   = 15 // age < 12

	pointsVitalSevere   = 15
	pointsVitalModerate = 10
	pointsSpO2Severe    = 20

	pointsCriticalComplaint = 25
	pointsUrgentComplaint   = 15

	pointsPerWaitHour = 5
	maxWaitPoints     = 20
)

// Scorer 患者优先级评分器
type Scorer struct {
	criticalKeywords []string
	urgentKeywords   []string
	now              func() time.Time
}

// Option 评分器选项
type Option func(*Scorer)

// WithKeywords 覆盖主诉关键词列表（大小写敏感）
func WithKeywords(critical, urgent []string) Option {
	return func(s *Scorer) {
		if len(critical) > 0 {
			s.criticalKeywords = critical
		}
		if len(urgent) > 0 {
			s.urgentKeywords = urgent
		}
	}
}

// WithClock 注入时钟（等待时间项依赖当前时间）
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		s.now = now
	}
}

// New 创建评分器
func New(opts ...Option) *Scorer {
	s := &Scorer{
		criticalKeywords: []string{"Chest Pain", "Stroke", "Trauma", "Respiratory Distress", "Unconscious"},
		urgentKeywords:   []string{"Fracture", "Severe Pain", "Bleeding", "Infection"},
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score 计算患者优先级评分（越高越紧急），最低为 0
func (s *Scorer) Score(p models.Patient) float64 {
	return s.ScoreAt(p, s.now())
}

// ScoreAt 以指定时间计算评分
func (s *Scorer) ScoreAt(p models.Patient, now time.Time) float64 {
	score := float64(triagePoints(p.Triage))
	score += float64(agePoints(p.Age))
	score += float64(heartRatePoints(p.Vitals.HeartRate))
	score += float64(oxygenPoints(p.Vitals.OxygenSaturation))
	score += float64(temperaturePoints(p.Vitals.Temperature))
	score += float64(s.complaintPoints(p.ChiefComplaint))
	score += waitPoints(p.ArrivalTime, now)
	return score
}

func triagePoints(level models.TriageLevel) int {
	switch level {
	case models.TriageCritical:
		return pointsCritical
	case models.TriageUrgent:
		return pointsUrgent
	case models.TriageNonUrgent:
		return pointsNonUrgent
	}
	return 0
}

func agePoints(age int) int {
	points := 0
	if age > 60 {
		points += pointsElderly
	}
	if age < 12 {
		points += pointsChild
	}
	return points
}

// 分档判断：只取最严重的一档
func heartRatePoints(hr *int) int {
	if hr == nil {
		return 0
	}
	switch v := *hr; {
	case v < 50 || v > 120:
		return pointsVitalSevere
	case v < 60 || v > 100:
		return pointsVitalModerate
	}
	return 0
}

func oxygenPoints(spo2 *int) int {
	if spo2 == nil {
		return 0
	}
	switch v := *spo2; {
	case v < 90:
		return pointsSpO2Severe
	case v < 95:
		return pointsVitalModerate
	}
	return 0
}

func temperaturePoints(temp *float64) int {
	if temp == nil {
		return 0
	}
	switch v := *temp; {
	case v < 35 || v > 39:
		return pointsVitalSevere
	case v < 36 || v > 38:
		return pointsVitalModerate
	}
	return 0
}

func (s *Scorer) complaintPoints(complaint string) int {
	if complaint == "" {
		return 0
	}
	if containsAny(complaint, s.criticalKeywords) {
		return pointsCriticalComplaint
	}
	if containsAny(complaint, s.urgentKeywords) {
		return pointsUrgentComplaint
	}
	return 0
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// 等待时长（小时）× 5，上限 20；到达时间缺失或在未来时为 0
func waitPoints(arrival, now time.Time) float64 {
	if arrival.IsZero() || !now.After(arrival) {
		return 0
	}
	points := now.Sub(arrival).Hours() * pointsPerWaitHour
	if points > maxWaitPoints {
		return maxWaitPoints
	}
	return points
}

// RiskLevel 评分对应的风险等级
func RiskLevel(score float64) string {
	switch {
	case score >= 80:
		return "Critical"
	case score >= 60:
		return "High"
	case score >= 40:
		return "Moderate"
	case score >= 20:
		return "Low"
	}
	return "Minimal"
}

// Rank 对患者评分并按评分降序排列
// 同分时按到达时间先后、再按 ID 排序，保证同一输入结果稳定
func (s *Scorer) Rank(patients []models.Patient) []models.ScoredPatient {
	now := s.now()
	ranked := make([]models.ScoredPatient, 0, len(patients))
	for _, p := range patients {
		score := s.ScoreAt(p, now)
		ranked = append(ranked, models.ScoredPatient{
			Patient:   p,
			Score:     score,
			RiskLevel: RiskLevel(score),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.ArrivalTime.Equal(b.ArrivalTime) {
			return a.ArrivalTime.Before(b.ArrivalTime)
		}
		return a.ID < b.ID
	})

	return ranked
}
