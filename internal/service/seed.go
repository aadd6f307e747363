package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-allocator/internal/client"
	"wisefido-allocator/internal/config"
	"wisefido-allocator/internal/models"
	"wisefido-allocator/internal/repository"
	"wisefido-allocator/internal/store"

	"go.uber.org/zap"
)

// BoardSource 患者和资源的初始数据来源
type BoardSource interface {
	LoadPatients(ctx context.Context) ([]models.Patient, error)
	LoadResources(ctx context.Context) ([]models.Resource, error)
}

// mockSource 内置演示数据
type mockSource struct {
	now func() time.Time
}

func (m mockSource) LoadPatients(context.Context) ([]models.Patient, error) {
	patients, _ := store.MockData(m.now())
	return patients, nil
}

func (m mockSource) LoadResources(context.Context) ([]models.Resource, error) {
	_, resources := store.MockData(m.now())
	return resources, nil
}

// backendSource 从 CRUD 后端拉取
type backendSource struct {
	client *client.BackendClient
}

func (b backendSource) LoadPatients(ctx context.Context) ([]models.Patient, error) {
	return b.client.FetchPatients(ctx)
}

func (b backendSource) LoadResources(ctx context.Context) ([]models.Resource, error) {
	return b.client.FetchResources(ctx)
}

// NewBoardSource 按 SEED_SOURCE 选择数据来源；postgres 需要传入 db
func NewBoardSource(cfg *config.Config, db *sql.DB, logger *zap.Logger) (BoardSource, error) {
	switch cfg.SeedSource {
	case "mock":
		return mockSource{now: time.Now}, nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres seed source requires a database connection")
		}
		return repository.NewBoardRepository(db, cfg.TenantID, logger), nil
	case "backend":
		return backendSource{
			client: client.NewBackendClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, cfg.TenantID, logger),
		}, nil
	default:
		return nil, fmt.Errorf("unknown seed source: %s", cfg.SeedSource)
	}
}

// Seed 从数据来源加载患者和资源到内存仓库
func Seed(ctx context.Context, src BoardSource, st *store.MemoryStore) error {
	patients, err := src.LoadPatients(ctx)
	if err != nil {
		return fmt.Errorf("failed to load patients: %w", err)
	}
	resources, err := src.LoadResources(ctx)
	if err != nil {
		return fmt.Errorf("failed to load resources: %w", err)
	}
	if err := st.Load(patients, resources); err != nil {
		return fmt.Errorf("failed to seed store: %w", err)
	}
	return nil
}
