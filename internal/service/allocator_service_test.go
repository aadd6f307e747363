package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wisefido-allocator/internal/cache"
	"wisefido-allocator/internal/config"
	"wisefido-allocator/internal/models"
	"wisefido-allocator/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		TenantID:   "tenant-1",
		SeedSource: "mock",
		HTTPAddr:   "127.0.0.1:0",
	}
	cfg.Allocator = config.AllocatorConfig{
		Interval:             time.Hour,
		UtilizationThreshold: 0.8,
		EventQueueSize:       64,
		MaxNotifications:     50,
	}
	cfg.Cache = config.CacheConfig{
		BoardKey:        "ed:board:",
		BoardTTL:        120,
		EventStream:     "ed:assignment-events",
		NotifyStream:    "ed:notifications",
		StreamMaxLength: 100,
	}
	cfg.Scoring = config.ScoringConfig{
		CriticalKeywords: config.DefaultCriticalKeywords,
		UrgentKeywords:   config.DefaultUrgentKeywords,
	}
	return cfg
}

func TestAllocatorService_PublishesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis = config.RedisConfig{Enabled: true, Addr: mr.Addr()}

	ctx := context.Background()
	svc, err := NewAllocatorService(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx, false))

	// 初始看板写入缓存
	require.Eventually(t, func() bool {
		return mr.Exists("ed:board:tenant-1")
	}, 2*time.Second, 10*time.Millisecond)

	// 看板接口读取缓存
	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/board", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cache", w.Header().Get("X-Board-Source"))

	// 未配置数据库时不提供审计查询
	w = httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/assignments", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/allocations/run", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ed_allocator_passes_total")

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(stopCtx))

	// Stop 之后事件队列已排空
	rc := cache.NewRedisClient(&config.RedisConfig{Addr: mr.Addr()})
	defer rc.Close()
	n, err := rc.XLen(ctx, "ed:assignment-events").Result()
	require.NoError(t, err)
	assert.Greater(t, n, int64(0))
}

func TestAllocatorService_RunsWithoutRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Redis = config.RedisConfig{Enabled: false}

	ctx := context.Background()
	svc, err := NewAllocatorService(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx, false))

	board, err := svc.Allocator().Board(ctx)
	require.NoError(t, err)
	assert.Len(t, board.Resources, 20)

	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/board", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "live", w.Header().Get("X-Board-Source"))

	require.NoError(t, svc.Stop(ctx))
}

func TestAllocatorService_ServesHTTP(t *testing.T) {
	cfg := testConfig()

	ctx := context.Background()
	svc, err := NewAllocatorService(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, svc.Start(ctx, true))
	defer func() { _ = svc.Stop(ctx) }()

	require.Eventually(t, func() bool { return svc.Addr() != "" }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + svc.Addr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAllocatorService_RedisUnavailableDegrades(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig()
	cfg.Redis = config.RedisConfig{Enabled: true, Addr: addr}

	svc, err := NewAllocatorService(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, svc.redisClient)
	assert.Empty(t, svc.sinks())
}

func TestNewBoardSource(t *testing.T) {
	cfg := testConfig()

	src, err := NewBoardSource(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	patients, err := src.LoadPatients(context.Background())
	require.NoError(t, err)
	assert.Len(t, patients, 9)

	cfg.SeedSource = "postgres"
	_, err = NewBoardSource(cfg, nil, zap.NewNop())
	assert.Error(t, err)

	cfg.SeedSource = "carrier-pigeon"
	_, err = NewBoardSource(cfg, nil, zap.NewNop())
	assert.Error(t, err)
}

type failingSource struct{}

func (failingSource) LoadPatients(context.Context) ([]models.Patient, error) {
	return nil, errors.New("backend down")
}

func (failingSource) LoadResources(context.Context) ([]models.Resource, error) {
	return nil, nil
}

func TestSeed_PropagatesSourceError(t *testing.T) {
	st := store.NewMemoryStore(0)
	err := Seed(context.Background(), failingSource{}, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
	assert.Empty(t, st.Patients())
}
