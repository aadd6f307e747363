package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wisefido-allocator/internal/allocator"
	"wisefido-allocator/internal/cache"
	"wisefido-allocator/internal/models"
	"wisefido-allocator/internal/scheduler"
	"wisefido-allocator/internal/scorer"
	"wisefido-allocator/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func setupRouter(t *testing.T) (*Router, *store.MemoryStore) {
	r, st, _ := setupRouterWithHandler(t)
	return r, st
}

func setupRouterWithHandler(t *testing.T) (*Router, *store.MemoryStore, *AllocationHandler) {
	t.Helper()
	logger := zap.NewNop()

	st := store.NewMemoryStore(0)
	patients, resources := store.MockData(fixedNow)
	require.NoError(t, st.Load(patients, resources))

	clock := func() time.Time { return fixedNow }
	a := allocator.New(st, scorer.New(scorer.WithClock(clock)), logger, allocator.WithClock(clock))
	re := scheduler.New(a, time.Minute, logger)

	h := NewAllocationHandler(a, re, logger)
	r := NewRouter(logger)
	r.RegisterHealthRoutes()
	r.RegisterAllocationRoutes(h)
	return r, st, h
}

func do(t *testing.T, r *Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _ := setupRouter(t)
	w := do(t, r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"code":2000`) {
		t.Fatalf("unexpected health response: %d %s", w.Code, w.Body.String())
	}
}

func TestListPatients_SortedByScore(t *testing.T) {
	r, _ := setupRouter(t)
	w := do(t, r, http.MethodGet, "/api/v1/patients", "")
	require.Equal(t, http.StatusOK, w.Code)

	var res Result[[]models.ScoredPatient]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, ResultSuccess, res.Code)
	require.Len(t, res.Result, 9)
	for i := 1; i < len(res.Result); i++ {
		assert.GreaterOrEqual(t, res.Result[i-1].Score, res.Result[i].Score)
	}
}

func TestListResources_Filters(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(t, r, http.MethodGet, "/api/v1/resources?type=bed&status=available", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res Result[[]models.Resource]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Result, 2)
	assert.Equal(t, "R007", res.Result[0].ID)

	w = do(t, r, http.MethodGet, "/api/v1/resources?type=spaceship", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"code":-1`)

	w = do(t, r, http.MethodPost, "/api/v1/resources", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestResourceSummary(t *testing.T) {
	r, _ := setupRouter(t)
	w := do(t, r, http.MethodGet, "/api/v1/resources/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"utilization":0.65`)
	assert.Contains(t, body, `"type":"bed"`)
}

func TestAssignResource(t *testing.T) {
	r, st := setupRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/resources/R007/assign", `{"patient_id":"P008"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"manual":true`)

	require.NoError(t, st.View(func(tx *store.Tx) error {
		res, ok := tx.Resource("R007")
		require.True(t, ok)
		assert.Equal(t, models.StatusInUse, res.Status)
		assert.Equal(t, "P008", res.AssignedTo)
		return nil
	}))

	// 已占用
	w = do(t, r, http.MethodPost, "/api/v1/resources/R007/assign", `{"patient_id":"P006"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 未知资源
	w = do(t, r, http.MethodPost, "/api/v1/resources/R999/assign", `{"patient_id":"P006"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/resources/R008/assign", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/resources/R008/assign", `not-json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/resources/R008/assign", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/resources/R008/explode", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateResourceStatus(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/resources/R007/status", `{"status":"maintenance"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"maintenance"`)

	// in-use 只能释放
	w = do(t, r, http.MethodPost, "/api/v1/resources/R001/status", `{"status":"maintenance"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/resources/R001/status", `{"status":"broken"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/resources/R001/status", `{"status":"available"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), `"assigned_to"`)
}

func TestRunAllocation(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/allocations/run", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res Result[allocator.PassResult]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotEmpty(t, res.Result.Assignments)
	assert.Equal(t, "R007", res.Result.Assignments[0].ResourceID)

	w = do(t, r, http.MethodGet, "/api/v1/allocations/run", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestNotifications(t *testing.T) {
	r, st := setupRouter(t)
	require.NoError(t, st.Update(func(tx *store.Tx) error {
		return tx.AddNotification(models.Notification{ID: "n-1", Type: models.NotificationInfo, Message: "hello", Timestamp: fixedNow})
	}))

	w := do(t, r, http.MethodGet, "/api/v1/notifications?unread=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"n-1"`)

	w = do(t, r, http.MethodPost, "/api/v1/notifications/n-1/read", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/notifications?unread=true", "")
	assert.NotContains(t, w.Body.String(), `"id":"n-1"`)

	w = do(t, r, http.MethodPost, "/api/v1/notifications/missing/read", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/notifications?unread=maybe", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportResources(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(t, r, http.MethodGet, "/api/v1/reports/resources.xlsx", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "ed_resources.xlsx")

	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Resources")
}

func TestDischargePatient(t *testing.T) {
	r, st := setupRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/patients/P002/discharge", `{"status":"discharged"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res Result[struct {
		PatientID string            `json:"patient_id"`
		Released  []models.Resource `json:"released_resources"`
	}]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "P002", res.Result.PatientID)
	require.Len(t, res.Result.Released, 2)
	assert.Equal(t, "R001", res.Result.Released[0].ID)
	assert.Equal(t, "R018", res.Result.Released[1].ID)

	require.NoError(t, st.View(func(tx *store.Tx) error {
		_, ok := tx.Patient("P002")
		assert.False(t, ok)
		bed, _ := tx.Resource("R001")
		assert.Equal(t, models.StatusAvailable, bed.Status)
		return nil
	}))

	// 已出院
	w = do(t, r, http.MethodPost, "/api/v1/patients/P002/discharge", `{"status":"discharged"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/patients/P003/discharge", `{"status":"waiting"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/patients/P003/discharge", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/patients/P003/discharge", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/patients/P003/admit", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type fakeSnapshot struct {
	board *models.Board
	err   error
}

func (f *fakeSnapshot) GetBoard(context.Context) (*models.Board, error) {
	return f.board, f.err
}

func TestGetBoard_CacheThenLive(t *testing.T) {
	r, _, h := setupRouterWithHandler(t)

	// 未配置缓存时实时生成
	w := do(t, r, http.MethodGet, "/api/v1/board", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "live", w.Header().Get("X-Board-Source"))
	var res Result[models.Board]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Len(t, res.Result.Resources, 20)

	snap := &fakeSnapshot{board: &models.Board{GeneratedAt: fixedNow, Utilization: 0.5}}
	h.SetBoardCache(snap)

	w = do(t, r, http.MethodGet, "/api/v1/board", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cache", w.Header().Get("X-Board-Source"))
	assert.Contains(t, w.Body.String(), `"utilization":0.5`)

	snap.board, snap.err = nil, cache.ErrBoardNotFound
	w = do(t, r, http.MethodGet, "/api/v1/board", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "live", w.Header().Get("X-Board-Source"))

	snap.err = errors.New("connection refused")
	w = do(t, r, http.MethodGet, "/api/v1/board", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "live", w.Header().Get("X-Board-Source"))

	w = do(t, r, http.MethodPost, "/api/v1/board", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
