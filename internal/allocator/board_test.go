package allocator

import (
	"context"
	"fmt"
	"testing"

	"wisefido-allocator/internal/models"
	"wisefido-allocator/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_LevelsAndOrder(t *testing.T) {
	resources := []models.Resource{
		{ID: "V1", Type: models.ResourceVentilator, Status: models.StatusInUse},
		{ID: "B1", Type: models.ResourceBed, Status: models.StatusAvailable},
		{ID: "B2", Type: models.ResourceBed, Status: models.StatusAvailable},
		{ID: "B3", Type: models.ResourceBed, Status: models.StatusMaintenance},
		{ID: "M1", Type: models.ResourceMonitor, Status: models.StatusAvailable},
		{ID: "M2", Type: models.ResourceMonitor, Status: models.StatusReserved},
	}

	summary := Summarize(resources)
	require.Len(t, summary, 3)

	// 按固定类型顺序输出
	assert.Equal(t, models.ResourceBed, summary[0].Type)
	assert.Equal(t, 3, summary[0].Total)
	assert.Equal(t, 2, summary[0].Available)
	assert.Equal(t, 1, summary[0].Maintenance)
	assert.Equal(t, 67, summary[0].AvailablePercent)
	assert.Equal(t, LevelNormal, summary[0].Level)

	assert.Equal(t, models.ResourceVentilator, summary[1].Type)
	assert.Equal(t, 0, summary[1].AvailablePercent)
	assert.Equal(t, LevelCritical, summary[1].Level)

	assert.Equal(t, models.ResourceMonitor, summary[2].Type)
	assert.Equal(t, 1, summary[2].Reserved)
	assert.Equal(t, 50, summary[2].AvailablePercent)
	assert.Equal(t, LevelLow, summary[2].Level)
}

func TestSummarize_PercentRounded(t *testing.T) {
	var resources []models.Resource
	for i := 0; i < 200; i++ {
		status := models.StatusInUse
		if i < 41 {
			status = models.StatusAvailable
		}
		resources = append(resources, models.Resource{ID: fmt.Sprintf("B%d", i), Type: models.ResourceBed, Status: status})
	}

	summary := Summarize(resources)
	require.Len(t, summary, 1)
	// 20.5% 四舍五入为 21，落在 low 档
	assert.Equal(t, 21, summary[0].AvailablePercent)
	assert.Equal(t, LevelLow, summary[0].Level)
}

func TestResourceFilter(t *testing.T) {
	r := models.Resource{ID: "R013", Name: "Cardiac Monitor 3", Type: models.ResourceMonitor, Status: models.StatusAvailable}

	assert.True(t, ResourceFilter{}.Match(r))
	assert.True(t, ResourceFilter{Type: models.ResourceMonitor}.Match(r))
	assert.False(t, ResourceFilter{Type: models.ResourceBed}.Match(r))
	assert.True(t, ResourceFilter{Status: models.StatusAvailable}.Match(r))
	assert.False(t, ResourceFilter{Status: models.StatusInUse}.Match(r))
	assert.True(t, ResourceFilter{Search: "cardiac"}.Match(r))
	assert.True(t, ResourceFilter{Search: "r013"}.Match(r))
	assert.False(t, ResourceFilter{Search: "ventilator"}.Match(r))
}

func TestBoard_QueueAndSummary(t *testing.T) {
	patients, resources := store.MockData(fixedNow)
	a, _, _ := setupAllocator(t, patients, resources)

	board, err := a.Board(context.Background())
	require.NoError(t, err)

	assert.Len(t, board.Resources, 20)
	assert.Len(t, board.Queue, 9)
	assert.Equal(t, 0.65, board.Utilization)
	assert.True(t, board.GeneratedAt.Equal(fixedNow))

	// 队列按评分降序
	for i := 1; i < len(board.Queue); i++ {
		assert.GreaterOrEqual(t, board.Queue[i-1].Score, board.Queue[i].Score)
	}

	var p003 models.ScoredPatient
	for _, p := range board.Queue {
		if p.ID == "P003" {
			p003 = p
		}
	}
	assert.Equal(t, []string{"R002", "R009", "R012", "R017"}, p003.Resources)
	assert.Equal(t, "Critical", p003.RiskLevel)
}

func TestQueue_ExcludesInactive(t *testing.T) {
	a, _, _ := setupAllocator(t, []models.Patient{
		{ID: "P1", Status: models.PatientDischarged},
		{ID: "P2", Status: models.PatientWaiting},
	}, nil)

	queue, err := a.Queue(context.Background())
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "P2", queue[0].ID)
}

func TestResources_Filtered(t *testing.T) {
	patients, resources := store.MockData(fixedNow)
	a, _, _ := setupAllocator(t, patients, resources)

	got, err := a.Resources(context.Background(), ResourceFilter{Type: models.ResourceBed, Status: models.StatusAvailable})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "R007", got[0].ID)
	assert.Equal(t, "R008", got[1].ID)

	none, err := a.Resources(context.Background(), ResourceFilter{Search: "helicopter"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestNotifications_ListAndMarkRead(t *testing.T) {
	a, _, _ := setupAllocator(t,
		[]models.Patient{{ID: "P1", Triage: models.TriageCritical}},
		[]models.Resource{{ID: "V1", Type: models.ResourceVentilator}},
	)
	ctx := context.Background()

	_, err := a.Run(ctx)
	require.NoError(t, err)

	all, err := a.Notifications(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, a.MarkNotificationRead(ctx, all[0].ID))
	unread, err := a.Notifications(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, unread)

	assert.ErrorIs(t, a.MarkNotificationRead(ctx, "missing"), store.ErrNotificationNotFound)
}
